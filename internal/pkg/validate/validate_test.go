package validate

import (
	"testing"

	"github.com/go-notify-hub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(&domain.CreateNotificationRequest{Title: "t", Message: "m", RecipientID: "u1"}))
}

func TestStruct_ReportsJSONNames(t *testing.T) {
	err := Struct(&domain.CreateNotificationRequest{Message: "m", RecipientID: "u1", Priority: "critical"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CreateNotificationRequest.title' failed 'required'")
	assert.Contains(t, err.Error(), "CreateNotificationRequest.priority' failed 'oneof'")
}

func TestStruct_BulkLimits(t *testing.T) {
	recipients := make([]string, domain.MaxBulkSize+1)
	for i := range recipients {
		recipients[i] = "u"
	}
	err := Struct(&domain.BulkNotificationRequest{
		Recipients: recipients,
		Data:       domain.BulkNotificationBody{Title: "t", Message: "m"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipients' failed 'max'")

	err = Struct(&domain.BulkNotificationRequest{
		Recipients: []string{"u1"},
		Data:       domain.BulkNotificationBody{Message: "m"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notificationData.title' failed 'required'")
}
