package services

import (
	"context"
	"errors"
	"testing"

	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func senderFixture(t *testing.T, mailer Mailer) (*EmailSendService, *storage.SQLiteCRMStore) {
	store := newCRM(t, storage.SeedFile{
		"leads": {
			{"id": 1, "name": "Asha Rao", "email": "asha@example.com"},
			{"id": 2, "name": "No Mail"},
			{"id": 3, "name": "Bad Mail", "email": "not-an-address"},
		},
	})
	return NewEmailSendService(NewLeadResolver(store), mailer, store, "SalesBot <bot@example.com>"), store
}

func TestSendDraft(t *testing.T) {
	mailer := &fakeMailer{}
	svc, store := senderFixture(t, mailer)

	result, err := svc.Send(context.Background(), SendRequest{
		Draft: &EmailDraft{LeadID: 1, Subject: "Hello", Body: "Hi Asha"},
	})
	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.Equal(t, "Email successfully sent to Asha Rao (asha@example.com)", result.Response())
	assert.Equal(t, []string{"asha@example.com|Hello"}, mailer.sent)

	res, err := store.Query(context.Background(), storage.Query{Table: "emails"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Hello", res.Records[0].String("subject"))
	assert.Equal(t, float64(1), res.Records[0]["lead_id"])
}

func TestSendTemplateByName(t *testing.T) {
	mailer := &fakeMailer{}
	svc, _ := senderFixture(t, mailer)

	result, err := svc.Send(context.Background(), SendRequest{Identifier: "Asha Rao", Message: "send reminder email to Asha Rao"})
	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.Equal(t, "Meeting Reminder – Asha Rao", result.Subject)
}

func TestSendRejections(t *testing.T) {
	svc, _ := senderFixture(t, &fakeMailer{})
	ctx := context.Background()

	result, err := svc.Send(ctx, SendRequest{Identifier: "No Mail"})
	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.Equal(t, "Failed to send email to No Mail. Reason: Lead No Mail does not have an email address", result.Response())

	result, err = svc.Send(ctx, SendRequest{Identifier: "Bad Mail"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid email address: not-an-address", result.Reason)

	result, err = svc.Send(ctx, SendRequest{Draft: &EmailDraft{LeadID: 1, Subject: "", Body: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "Email subject cannot be empty", result.Reason)

	_, err = svc.Send(ctx, SendRequest{})
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound))
}

func TestSendDeliveryFailure(t *testing.T) {
	svc, store := senderFixture(t, &fakeMailer{err: errors.New("connection refused")})

	result, err := svc.Send(context.Background(), SendRequest{Identifier: "1"})
	require.NoError(t, err)
	assert.False(t, result.Sent)
	assert.Equal(t, "Failed to send email to Asha Rao. Reason: connection refused", result.Response())

	res, err := store.Query(context.Background(), storage.Query{Table: "emails"})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestSMTPMailerIncompleteConfig(t *testing.T) {
	err := NewSMTPMailer(model.SMTPConfig{Host: "smtp.example.com"}).Send(context.Background(), "a@b.co", "s", "b")
	require.Error(t, err)
	assert.True(t, pkg.IsKind(err, pkg.ErrValidation))
	assert.Equal(t, "SalesBot <bot@example.com>", NewSMTPMailer(model.SMTPConfig{FromName: "SalesBot", Username: "bot@example.com"}).From())
}

func TestSelectSendTemplate(t *testing.T) {
	assert.Equal(t, SendTemplateReminder, SelectSendTemplate("send meeting reminder to Asha"))
	assert.Equal(t, SendTemplateFollowup, SelectSendTemplate("send follow up after demo"))
	assert.Equal(t, SendTemplateIntroduction, SelectSendTemplate("send email to Asha"))
}
