package ai

import (
	"fmt"
	"strings"
	"time"
)

const extractionSystemPrompt = `You extract school events from school notification emails sent to parents.

Return a JSON object with a single key "events" holding a list. Each event has:
- "title": short event title
- "description": one or two sentences describing the event
- "location": where it happens, or "" when not stated
- "start_date": YYYY-MM-DD
- "end_date": YYYY-MM-DD, same as start_date for single-day events
- "start_time": HH:MM in 24h clock, or "" when not stated
- "end_time": HH:MM in 24h clock, or "" when not stated
- "parent_actions": list of {"action", "link", "due"}. "action" is a short instruction
  (10 words max) for every call to action aimed at parents: forms, permission slips,
  payments, RSVPs, sign-ups, volunteering, surveys. "link" is the URL to complete it or "".
  "due" is the deadline as YYYY-MM-DD, or the wording used in the email, or "".

A multi-day event uses its first day as start_date and its last day as end_date.
When a date is vague but parents must act, estimate it from the email date and phrases
such as "this Friday" or "next week".
Ignore quoted replies, signatures, unsubscribe and footer links.
If the email contains no events return {"events": []}. Return only the JSON object.`

const classificationSystemPrompt = `You triage school action items for busy parents.

Classify the action item into exactly one priority:
- "must_do": required of parents, e.g. permission slips, fees, mandatory meetings, hard deadlines
- "highly_recommended": strongly encouraged but not required, e.g. volunteering, conferences, fundraisers
- "optional": nice to know, e.g. spirit days, book fairs, performances

Items due soon are more urgent than the same item due weeks away.
Return a JSON object {"priority": "<label>"} and nothing else.`

func buildExtractionPrompt(req ExtractRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's date: %s\n", req.Today.Format("2006-01-02 (Monday)"))
	if !req.EmailDate.IsZero() {
		fmt.Fprintf(&b, "Email date: %s\n", req.EmailDate.Format(time.RFC1123Z))
	}
	if req.Sender != "" {
		fmt.Fprintf(&b, "From: %s\n", req.Sender)
	}
	fmt.Fprintf(&b, "\nSubject: %s\n\nBody:\n%s\n", req.Subject, req.Body)
	return b.String()
}

func buildClassificationPrompt(req ClassifyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's date: %s\n", req.Today.Format("2006-01-02 (Monday)"))
	fmt.Fprintf(&b, "Action item: %s\n", req.Item)
	if req.Due != nil {
		fmt.Fprintf(&b, "Due: %s\n", req.Due.Format("2006-01-02 15:04 (Monday)"))
	} else {
		b.WriteString("Due: not stated\n")
	}
	fmt.Fprintf(&b, "Event: %s on %s\n", req.EventTitle, req.EventStart.Format("2006-01-02 15:04 (Monday)"))
	if req.EventDescription != "" {
		fmt.Fprintf(&b, "Event details: %s\n", req.EventDescription)
	}
	return b.String()
}
