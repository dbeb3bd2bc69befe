package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/slackvault/internal/models"
)

// parseHeader builds a Conversation from the header block of a message file.
// The parser tolerates absent fields; only Channel ID and Type are required.
func parseHeader(lines []string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var typeField string
	var members []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Channel Name: "):
			conv.Name = strings.TrimPrefix(strings.TrimPrefix(line, "Channel Name: "), "#")

		case strings.HasPrefix(line, "Channel ID: "):
			conv.ID = strings.TrimSpace(strings.TrimPrefix(line, "Channel ID: "))

		case strings.HasPrefix(line, "Type: "):
			typeField = strings.TrimSpace(strings.TrimPrefix(line, "Type: "))

		case strings.HasPrefix(line, "Created: "):
			value := strings.TrimPrefix(line, "Created: ")
			tsPart, creator, hasCreator := strings.Cut(value, " UTC by ")
			if hasCreator {
				conv.Creator = strings.TrimSpace(creator)
			} else {
				tsPart = strings.TrimSuffix(value, " UTC")
			}
			if ts, err := parseTimestamp(tsPart+" UTC", time.Time{}); err == nil {
				conv.CreatedAt = ts
			}

		case strings.HasPrefix(line, "Topic: "):
			text, setBy, setAt := parseQuotedSetting(strings.TrimPrefix(line, "Topic: "))
			conv.Topic, conv.TopicSetBy, conv.TopicSetAt = text, setBy, setAt

		case strings.HasPrefix(line, "Purpose: "):
			text, setBy, setAt := parseQuotedSetting(strings.TrimPrefix(line, "Purpose: "))
			conv.Purpose, conv.PurposeSetBy, conv.PurposeSetAt = text, setBy, setAt

		case strings.HasPrefix(line, "Private conversation between "):
			for _, u := range strings.Split(strings.TrimPrefix(line, "Private conversation between "), ", ") {
				if u = strings.TrimSpace(u); u != "" {
					members = append(members, u)
				}
			}
		}
	}

	if conv.ID == "" {
		return nil, fmt.Errorf("header missing Channel ID")
	}
	if typeField == "" {
		return nil, fmt.Errorf("header missing Type")
	}

	conv.Kind = kindFromType(typeField, conv.ID, members)
	if len(members) > 0 {
		conv.Members = members
		if conv.Name == "" {
			conv.Name = "DM: " + strings.Join(members, "-")
		}
	}

	return conv, nil
}

// kindFromType maps the header Type field to a Kind. Multi-party DMs are
// exported with C-prefixed ids and more than two participants, sometimes
// still labelled "Direct Message".
func kindFromType(typeField, id string, members []string) models.Kind {
	switch strings.ToLower(typeField) {
	case "channel":
		return models.KindChannel
	case "phone call":
		return models.KindPhoneCall
	case "multi-party direct message":
		return models.KindMultiPartyDM
	case "direct message":
		if len(members) > 2 || strings.HasPrefix(id, "C") {
			return models.KindMultiPartyDM
		}
		return models.KindDirectMessage
	}
	// Unknown labels on a D-prefixed id are still DMs.
	if strings.HasPrefix(id, "D") {
		return models.KindDirectMessage
	}
	return models.KindChannel
}

// parseQuotedSetting parses `"text", set on <ts> UTC by <user>`. Malformed
// trailers degrade to just the text.
func parseQuotedSetting(value string) (text, setBy string, setAt *time.Time) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, `"`) {
		return value, "", nil
	}
	end := strings.Index(value[1:], `"`)
	if end < 0 {
		return strings.Trim(value, `"`), "", nil
	}
	text = value[1 : end+1]

	rest := strings.TrimPrefix(strings.TrimSpace(value[end+2:]), ",")
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "set on ") {
		return text, "", nil
	}
	tsPart, by, ok := strings.Cut(strings.TrimPrefix(rest, "set on "), " UTC by ")
	if !ok {
		return text, "", nil
	}
	if ts, err := parseTimestamp(tsPart+" UTC", time.Time{}); err == nil {
		setAt = &ts
	}
	return text, strings.TrimSpace(by), setAt
}
