package ads

import (
	"fmt"
	"regexp"
	"strings"
)

// HierarchyQuery lists the acting account and its direct clients. Deeper
// levels are reached by querying each client manager in turn.
func HierarchyQuery() string {
	return "SELECT customer_client.client_customer, customer_client.level, customer_client.manager, " +
		"customer_client.descriptive_name, customer_client.currency_code, customer_client.time_zone, " +
		"customer_client.id FROM customer_client " +
		"WHERE customer_client.level <= 1 AND customer_client.status = ENABLED"
}

// CustomerQuery lists every client account below the acting account.
func CustomerQuery(onlyEnabled bool) string {
	q := "SELECT customer_client.id, customer_client.manager, customer_client.descriptive_name, " +
		"customer_client.currency_code, customer_client.time_zone FROM customer_client"
	if onlyEnabled {
		q += " WHERE customer_client.status = ENABLED"
	}
	return q + " ORDER BY customer_client.id"
}

// CampaignQuery lists the campaigns of the acting account.
func CampaignQuery(onlyEnabled bool, since, until string) string {
	q := "SELECT campaign.id, campaign.name, campaign.status, campaign.serving_status, " +
		"campaign.ad_serving_optimization_status, campaign.advertising_channel_type, " +
		"campaign.start_date, campaign.end_date FROM campaign"

	var where []string
	if onlyEnabled {
		where = append(where, "campaign.status = ENABLED")
	}
	if since != "" && until != "" {
		where = append(where, dateCondition(since, until))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY campaign.id"
}

var (
	trailingClause = regexp.MustCompile(`(?i)\s+(ORDER\s+BY|LIMIT|PARAMETERS)\b`)
	whereClause    = regexp.MustCompile(`(?i)\bWHERE\b`)
)

// WithDateRange restricts a user query to segments.date between since and
// until, both inclusive. The condition joins an existing WHERE clause and is
// placed ahead of ORDER BY, LIMIT and PARAMETERS.
func WithDateRange(query, since, until string) string {
	if since == "" || until == "" {
		return query
	}
	query = strings.TrimSpace(query)

	// Keywords are matched on a copy with string literals blanked out.
	masked := maskLiterals(query)
	head, tail := query, ""
	if loc := trailingClause.FindStringIndex(masked); loc != nil {
		head, tail = query[:loc[0]], query[loc[0]:]
		masked = masked[:loc[0]]
	}

	cond := dateCondition(since, until)
	if whereClause.MatchString(masked) {
		return head + " AND " + cond + tail
	}
	return head + " WHERE " + cond + tail
}

// maskLiterals replaces the contents of quoted literals with underscores,
// keeping byte offsets.
func maskLiterals(query string) string {
	b := []byte(query)
	var quote byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case quote == 0:
			if c == '\'' || c == '"' {
				quote = c
			}
		case c == '\\' && i+1 < len(b):
			b[i], b[i+1] = '_', '_'
			i++
		case c == quote:
			quote = 0
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

func dateCondition(since, until string) string {
	return fmt.Sprintf(`segments.date BETWEEN "%s" AND "%s"`, since, until)
}
