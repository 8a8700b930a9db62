package ads

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseCustomerID(t *testing.T) {
	tests := []struct {
		in      string
		want    CustomerID
		wantErr bool
	}{
		{"123-456-7890", 1234567890, false},
		{"1234567890", 1234567890, false},
		{" 555 ", 555, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCustomerID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCustomerID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCustomerID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseResourceName(t *testing.T) {
	id, err := ParseResourceName("customers/9876543210")
	if err != nil {
		t.Fatalf("ParseResourceName() error = %v", err)
	}
	if id != 9876543210 {
		t.Errorf("ParseResourceName() = %d, want 9876543210", id)
	}
	if _, err := ParseResourceName("campaigns/1"); err == nil {
		t.Error("ParseResourceName(campaigns/1) expected error")
	}
}

func TestCampaignQuery(t *testing.T) {
	base := "SELECT campaign.id, campaign.name, campaign.status, campaign.serving_status, " +
		"campaign.ad_serving_optimization_status, campaign.advertising_channel_type, " +
		"campaign.start_date, campaign.end_date FROM campaign"

	tests := []struct {
		name        string
		onlyEnabled bool
		since       string
		until       string
		want        string
	}{
		{"no filters", false, "", "", base + " ORDER BY campaign.id"},
		{"enabled only", true, "", "", base + " WHERE campaign.status = ENABLED ORDER BY campaign.id"},
		{
			"enabled and dates", true, "2024-01-01", "2024-01-31",
			base + ` WHERE campaign.status = ENABLED AND segments.date BETWEEN "2024-01-01" AND "2024-01-31" ORDER BY campaign.id`,
		},
		{"half range ignored", false, "2024-01-01", "", base + " ORDER BY campaign.id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CampaignQuery(tt.onlyEnabled, tt.since, tt.until); got != tt.want {
				t.Errorf("CampaignQuery() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestCustomerQuery(t *testing.T) {
	got := CustomerQuery(true)
	want := "SELECT customer_client.id, customer_client.manager, customer_client.descriptive_name, " +
		"customer_client.currency_code, customer_client.time_zone FROM customer_client " +
		"WHERE customer_client.status = ENABLED ORDER BY customer_client.id"
	if got != want {
		t.Errorf("CustomerQuery(true) =\n%s\nwant\n%s", got, want)
	}
}

func TestWithDateRange(t *testing.T) {
	const cond = `segments.date BETWEEN "2024-02-01" AND "2024-02-29"`

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			"plain query",
			"SELECT campaign.id, metrics.clicks FROM campaign",
			"SELECT campaign.id, metrics.clicks FROM campaign WHERE " + cond,
		},
		{
			"existing where",
			"SELECT campaign.id FROM campaign WHERE campaign.status = ENABLED",
			"SELECT campaign.id FROM campaign WHERE campaign.status = ENABLED AND " + cond,
		},
		{
			"order by and limit",
			"SELECT campaign.id FROM campaign ORDER BY campaign.id LIMIT 10",
			"SELECT campaign.id FROM campaign WHERE " + cond + " ORDER BY campaign.id LIMIT 10",
		},
		{
			"lowercase where",
			"select ad_group.id from ad_group where ad_group.status = ENABLED order by ad_group.id",
			"select ad_group.id from ad_group where ad_group.status = ENABLED AND " + cond + " order by ad_group.id",
		},
		{
			"keywords inside a literal",
			"SELECT campaign.id FROM campaign WHERE campaign.name = 'no limit' LIMIT 5",
			"SELECT campaign.id FROM campaign WHERE campaign.name = 'no limit' AND " + cond + " LIMIT 5",
		},
		{
			"where only inside a literal",
			`SELECT campaign.id FROM campaign ORDER BY campaign.name = "where \" order by x"`,
			"SELECT campaign.id FROM campaign WHERE " + cond + ` ORDER BY campaign.name = "where \" order by x"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithDateRange(tt.query, "2024-02-01", "2024-02-29"); got != tt.want {
				t.Errorf("WithDateRange() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}

	if got := WithDateRange("SELECT a FROM b", "", ""); got != "SELECT a FROM b" {
		t.Errorf("WithDateRange() without dates = %q, want query unchanged", got)
	}
}

func TestToUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantMsg  string
		wantCode int
		wantUser bool
	}{
		{
			name:     "transport 4xx keeps code",
			err:      fmt.Errorf("search: %w", &TransportError{StatusCode: 401, Message: "invalid_grant"}),
			wantMsg:  "401: invalid_grant",
			wantCode: 401,
			wantUser: true,
		},
		{
			name:     "network failure",
			err:      &TransportError{Message: "connection reset"},
			wantMsg:  "ApiException was thrown with message 'connection reset'.",
			wantUser: true,
		},
		{
			name:     "platform error",
			err:      &PlatformError{HTTPStatus: 400, Status: "INVALID_ARGUMENT", Message: "Request contains an invalid argument."},
			wantMsg:  "INVALID_ARGUMENT: Request contains an invalid argument.",
			wantCode: 400,
			wantUser: true,
		},
		{
			name:     "other errors pass through",
			err:      errors.New("disk full"),
			wantMsg:  "disk full",
			wantUser: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToUserError(tt.err)
			if got.Error() != tt.wantMsg {
				t.Errorf("ToUserError() message = %q, want %q", got.Error(), tt.wantMsg)
			}
			if IsUserError(got) != tt.wantUser {
				t.Errorf("IsUserError() = %v, want %v", IsUserError(got), tt.wantUser)
			}
			var ue *UserError
			if errors.As(got, &ue) && ue.Code != tt.wantCode {
				t.Errorf("UserError.Code = %d, want %d", ue.Code, tt.wantCode)
			}
		})
	}
}

func TestPlatformError_Transient(t *testing.T) {
	if !(&PlatformError{Status: "UNAVAILABLE"}).Transient() {
		t.Error("UNAVAILABLE should be transient")
	}
	if (&PlatformError{Status: "INVALID_ARGUMENT"}).Transient() {
		t.Error("INVALID_ARGUMENT should not be transient")
	}

	pe := &PlatformError{Message: "top", Details: []string{"a", "b"}}
	if got := pe.Messages(); len(got) != 2 || got[0] != "a" {
		t.Errorf("Messages() = %v, want [a b]", got)
	}
	if got := (&PlatformError{Message: "top"}).Messages(); len(got) != 1 || got[0] != "top" {
		t.Errorf("Messages() = %v, want [top]", got)
	}
}
