package notify

// SendRequest mirrors the notification service's wire contract.
type SendRequest struct {
	TargetId string
	Title    string
	Body     string
}

// SendResponse reports the dispatch outcome.
type SendResponse struct {
	Success bool
	Message string
}

const sendMethod = "/notification.Notification/Send"
