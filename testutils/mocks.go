package testutils

import (
	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(destination, subject, body string) error {
	args := m.Called(destination, subject, body)
	return args.Error(0)
}

// RecordingNotifier captures delivered messages so tests can read the code
// back out of the body.
type RecordingNotifier struct {
	Destinations []string
	Subjects     []string
	Bodies       []string
	Err          error
}

func (n *RecordingNotifier) Send(destination, subject, body string) error {
	if n.Err != nil {
		return n.Err
	}
	n.Destinations = append(n.Destinations, destination)
	n.Subjects = append(n.Subjects, subject)
	n.Bodies = append(n.Bodies, body)
	return nil
}
