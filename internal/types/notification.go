package types

// NotificationType names the events the billing engine announces
type NotificationType string

const (
	NotificationTypeInvoiceSent          NotificationType = "invoice_sent"
	NotificationTypeInvoiceSendFailed    NotificationType = "invoice_send_failed"
	NotificationTypePaymentReceived      NotificationType = "payment_received"
	NotificationTypePaymentFailed        NotificationType = "payment_failed"
	NotificationTypePaymentRefunded      NotificationType = "payment_refunded"
	NotificationTypePaymentDisputed      NotificationType = "payment_disputed"
	NotificationTypePaymentUnapplied     NotificationType = "payment_unapplied"
	NotificationTypePaymentPlanCreated   NotificationType = "payment_plan_created"
	NotificationTypePaymentPlanDefaulted NotificationType = "payment_plan_defaulted"
	NotificationTypeTrustAccountActivity NotificationType = "trust_account_activity"
)

// NotificationPriority is how urgently staff should look at a notification
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// EmailTemplate names the templates the email dispatcher knows how to render
type EmailTemplate string

const (
	EmailTemplateInvoice              EmailTemplate = "invoice"
	EmailTemplatePaymentReceipt       EmailTemplate = "payment_receipt"
	EmailTemplatePaymentPlanAgreement EmailTemplate = "payment_plan_agreement"
	EmailTemplateStaffNotification    EmailTemplate = "staff_notification"
)

// AuditEntityType names the record an audit entry refers to
type AuditEntityType string

const (
	AuditEntityTrustAccount AuditEntityType = "trust_account"
	AuditEntityPayment      AuditEntityType = "payment"
)
