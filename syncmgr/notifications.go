package syncmgr

// NotificationType represents the type of a notification message.
type NotificationType int

// Constants for the type of a notification message.
const (
	// NTSyncStarted indicates a reconciliation pass has begun.
	NTSyncStarted NotificationType = iota
	// NTSyncFinished indicates a reconciliation pass has completed,
	// successfully or not; Data carries the SyncResult.
	NTSyncFinished
	// NTStageReconciled indicates one entity kind finished reconciling;
	// Data carries the stage name.
	NTStageReconciled
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTSyncStarted:     "NTSyncStarted",
	NTSyncFinished:    "NTSyncFinished",
	NTStageReconciled: "NTStageReconciled",
}

func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return "Unknown NotificationType"
}

// NotificationCallback is used for a caller to provide a callback for
// notifications about sync progress.
type NotificationCallback func(*Notification)

// Notification consists of a notification type as well as associated data.
type Notification struct {
	Type   NotificationType
	UserID string
	Data   interface{}
}
