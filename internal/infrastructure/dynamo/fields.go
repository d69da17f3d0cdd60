package dynamo

import "time"

// DynamoDB attribute names used in key, condition and update expressions.
// They must match the dynamodbav tags on domain.Notification.
const (
	fieldNotificationID = "notification_id"
	fieldRecipientID    = "recipient_id"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"
	fieldIsRead         = "is_read"
	fieldReadAt         = "read_at"
	fieldIsDeleted      = "is_deleted"
	fieldCategory       = "category"
	fieldPriority       = "priority"
	fieldExpiresEpoch   = "expires_at_epoch"
)

const (
	recipientIndex = "recipient_id-created_at-index"
	tableWait      = 2 * time.Minute
)
