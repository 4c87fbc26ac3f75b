package enums

import "fmt"

// MailingStatus is the subscriber state pushed to the mailing provider.
type MailingStatus string

const (
	MailingStatusSubscribed   MailingStatus = "subscribed"
	MailingStatusUnsubscribed MailingStatus = "unsubscribed"
	MailingStatusPending      MailingStatus = "pending"
	MailingStatusCleaned      MailingStatus = "cleaned"
)

var validMailingStatuses = []MailingStatus{
	MailingStatusSubscribed,
	MailingStatusUnsubscribed,
	MailingStatusPending,
	MailingStatusCleaned,
}

// String implements fmt.Stringer.
func (m MailingStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a status the provider accepts.
func (m MailingStatus) IsValid() bool {
	for _, candidate := range validMailingStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMailingStatus converts raw input into MailingStatus.
func ParseMailingStatus(value string) (MailingStatus, error) {
	for _, candidate := range validMailingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mailing status %q", value)
}
