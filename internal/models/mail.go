package models

import "time"

// MailMessage matches the document shape read by the Firebase Trigger Email extension.
type MailMessage struct {
	To        []string    `firestore:"to"`
	Message   MailContent `firestore:"message"`
	CreatedAt time.Time   `firestore:"createdAt"`
}

type MailContent struct {
	Subject string `firestore:"subject"`
	Text    string `firestore:"text"`
}
