package billing

import "testing"

func TestFromGatewayStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Status
	}{
		{"requires_payment_method", StatusRequiresPaymentMethod},
		{"requires_confirmation", StatusProcessing},
		{"requires_action", StatusProcessing},
		{"requires_capture", StatusProcessing},
		{"processing", StatusProcessing},
		{"succeeded", StatusSucceeded},
		{"canceled", StatusFailed},
		{"", StatusPending},
		{"some_future_status", StatusPending},
	}
	for _, tc := range cases {
		if got := FromGatewayStatus(tc.in); got != tc.want {
			t.Errorf("FromGatewayStatus(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusSucceeded, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusSucceeded, true},
		{StatusRequiresPaymentMethod, StatusFailed, true},
		{StatusFailed, StatusSucceeded, true}, // gateway may succeed after an earlier failure report
		{StatusSucceeded, StatusRefunded, true},
		{StatusSucceeded, StatusFailed, false},
		{StatusSucceeded, StatusPending, false},
		{StatusRefunded, StatusSucceeded, false},
		{StatusRefunded, StatusFailed, false},
		{StatusPending, StatusPending, false},
		{StatusSucceeded, StatusSucceeded, false},
	}
	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
