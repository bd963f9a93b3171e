package model

import (
	"strconv"
	"strings"
	"unicode"
)

// IncidentPayload is the wire shape of incident push events. The id may
// arrive under either field name depending on the producing endpoint; the
// fallback is resolved here, once.
type IncidentPayload struct {
	ID            int64  `json:"id"`
	IncidentID    int64  `json:"incident_id"`
	IncidentType  string `json:"incident_type"`
	Location      string `json:"location"`
	PriorityLevel string `json:"priority_level"`
	DateReported  string `json:"date_reported"`
}

// Item decodes the payload into the tagged internal representation.
func (p *IncidentPayload) Item() NotificationItem {
	id := p.ID
	if id == 0 {
		id = p.IncidentID
	}

	title := p.IncidentType
	if title == "" {
		title = "Incident"
	}

	return NotificationItem{
		ID:         strconv.FormatInt(id, 10),
		Kind:       KindIncident,
		Title:      title,
		Message:    p.Location,
		Priority:   ParsePriority(p.PriorityLevel),
		OccurredAt: ParseEventTime(p.DateReported),
	}
}

// WelfarePayload is the wire shape of welfare push events. Several fields
// have legacy aliases; the normalization happens in Item and nowhere else.
type WelfarePayload struct {
	ReportID       int64  `json:"report_id"`
	ID             int64  `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	UserName       string `json:"user_name"`
	AdditionalInfo string `json:"additional_info"`
	Description    string `json:"description"`
	SubmittedAt    string `json:"submitted_at"`
	DateReported   string `json:"date_reported"`
}

// Item decodes the payload into the tagged internal representation. The id is
// synthesized as welfare_<reportID> so that REST-fetched and push-delivered
// representations of the same report collapse into one item.
func (p *WelfarePayload) Item() NotificationItem {
	id := p.ReportID
	if id == 0 {
		id = p.ID
	}

	name := strings.TrimSpace(p.UserName)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	}
	if name == "" {
		name = "Unknown User"
	}

	message := p.AdditionalInfo
	if message == "" {
		message = p.Description
	}

	return NotificationItem{
		ID:         WelfareID(id),
		Kind:       KindWelfare,
		Title:      "Welfare check requested",
		Message:    message,
		Priority:   PriorityHigh,
		OccurredAt: ParseEventTime(p.SubmittedAt, p.DateReported),
		UserName:   name,
		Status:     "needs_help",
	}
}

// WelfareID builds the stable identifier shared by the REST and push
// representations of a welfare report.
func WelfareID(relatedID int64) string {
	return "welfare_" + strconv.FormatInt(relatedID, 10)
}

// StripIconToken drops a single leading "icon token" (a field containing no
// letters or digits, e.g. an emoji marker) off a display title. Used when the
// unified endpoint carries no incident_type in its metadata.
func StripIconToken(title string) string {
	fields := strings.Fields(title)
	if len(fields) < 2 {
		return title
	}

	for _, r := range fields[0] {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return title
		}
	}
	return strings.Join(fields[1:], " ")
}
