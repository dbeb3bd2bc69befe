// Package export parses Slack's plain-text export dialect into typed records.
//
// A message file is a header block, a `####…####` separator, a `Messages:`
// line, and then date headers and message lines. The parser is tolerant:
// lines that match no grammar become per-line failure records and parsing
// continues; only a missing header makes the whole file fail.
package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/raphaelgruber/slackvault/internal/models"
)

// ErrInvalidFormat marks a file that is not a parseable message file
// (missing header separator or required header fields).
var ErrInvalidFormat = errors.New("invalid export file format")

// Failure describes one line that matched no grammar. Whole-file problems
// are returned as errors by Parse, not as Failures.
type Failure struct {
	Path string
	Line int // 1-based line number in the file
	Text string
	Err  string
}

// FileResult is the parse output of a single message file. Messages are in
// emission order; the indexer relies on that order for thread attachment.
type FileResult struct {
	Path         string
	Conversation *models.Conversation
	Messages     []*models.Message
	Failures     []Failure
}

var (
	reactionRe  = regexp.MustCompile(`^:([A-Za-z0-9_+'\-]+):\s+(.+)$`)
	fileShareRe = regexp.MustCompile(`^(\S+) shared files? (\S+) with text:$`)
)

// ParseFile reads and parses one message file. An unreadable file returns an
// error; the caller records it as a whole-file failure and skips the file.
func ParseFile(path string) (*FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse parses a message file from a reader. Empty files yield an empty
// result rather than an error.
func Parse(r io.Reader, path string) (*FileResult, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	result := &FileResult{Path: path}

	sep := separatorIndex(lines)
	if sep < 0 {
		if blank(lines) {
			return result, nil
		}
		return nil, fmt.Errorf("%w: no header separator in %s", ErrInvalidFormat, path)
	}

	conv, err := parseHeader(lines[:sep])
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrInvalidFormat, err, path)
	}
	result.Conversation = conv

	p := &fileParser{result: result, replyUsers: make(map[*models.Message]map[string]bool)}

	body := lines[sep+1:]
	offset := sep + 2 // 1-based line number of the first body line
	if len(body) > 0 && strings.TrimSpace(body[0]) == "Messages:" {
		body = body[1:]
		offset++
	}
	for i, raw := range body {
		p.handleLine(raw, offset+i)
	}

	return result, nil
}

// separatorIndex finds the first line made entirely of # characters.
func separatorIndex(lines []string) int {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= 4 && strings.Trim(trimmed, "#") == "" {
			return i
		}
	}
	return -1
}

func blank(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return false
		}
	}
	return true
}

// fileParser holds the line-to-line state of the message block.
type fileParser struct {
	result *FileResult

	date       time.Time       // last seen date header
	seq        int             // ingestion ordinal within the file
	prev       *models.Message // reaction target
	parent     *models.Message // thread parent for indented replies
	replyUsers map[*models.Message]map[string]bool
	collecting *models.Message // file-share collecting its indented text block
}

func (p *fileParser) handleLine(raw string, lineNo int) {
	if strings.TrimSpace(raw) == "" {
		p.collecting = nil
		return
	}

	indented := raw[0] == ' ' || raw[0] == '\t'
	line := strings.TrimSpace(raw)

	if date, ok := parseDateHeader(line); ok {
		p.date = date
		return
	}

	if !indented {
		p.collecting = nil
		msg, pending, err := p.parseLine(line)
		if err != nil {
			p.fail(lineNo, raw, err)
			return
		}
		p.emit(msg, nil)
		if pending {
			p.collecting = msg
		}
		return
	}

	// Indented continuation of a `shared file(s) … with text:` line.
	if p.collecting != nil {
		if p.collecting.Text == "" {
			p.collecting.Text = line
		} else {
			p.collecting.Text += "\n" + line
		}
		p.collecting.TextHash = models.DedupHash(p.collecting.Text, p.collecting.SystemAction)
		return
	}

	// Reaction on the preceding message.
	if m := reactionRe.FindStringSubmatch(line); m != nil && p.prev != nil {
		users := strings.Split(m[2], ", ")
		for i := range users {
			users[i] = strings.TrimSpace(users[i])
		}
		p.prev.Reactions = append(p.prev.Reactions, models.Reaction{Emoji: m[1], Users: users})
		return
	}

	// Thread reply: an indented message line following a parent.
	if strings.HasPrefix(line, "[") && p.parent != nil {
		msg, pending, err := p.parseLine(line)
		if err == nil {
			parent := p.parent
			p.emit(msg, parent)
			if pending {
				p.collecting = msg
			}
			return
		}
	}

	p.fail(lineNo, raw, errors.New("line matches no grammar"))
}

// emit finalises a message and appends it to the result. A non-nil parent
// attaches the message as a thread reply.
func (p *fileParser) emit(msg *models.Message, parent *models.Message) {
	msg.ConversationID = p.result.Conversation.ID
	p.seq++
	msg.Seq = p.seq
	msg.TextHash = models.DedupHash(msg.Text, msg.SystemAction)

	if parent != nil {
		ts := parent.TS
		msg.ThreadTS = &ts
		parent.ReplyCount++
		users := p.replyUsers[parent]
		if users == nil {
			users = make(map[string]bool)
			p.replyUsers[parent] = users
		}
		if msg.Username != "" && !users[msg.Username] {
			users[msg.Username] = true
			parent.ReplyUsersCount = len(users)
		}
	} else {
		p.parent = msg
	}

	p.prev = msg
	p.result.Messages = append(p.result.Messages, msg)
}

func (p *fileParser) fail(lineNo int, raw string, err error) {
	p.result.Failures = append(p.result.Failures, Failure{
		Path: p.result.Path,
		Line: lineNo,
		Text: raw,
		Err:  err.Error(),
	})
}

// parseLine parses one message line. Only the leading bracketed token is
// consumed as the timestamp; bracketed tokens inside the body are preserved
// verbatim. The pending flag signals that the following indented block (until
// a blank line) is the message text.
func (p *fileParser) parseLine(line string) (*models.Message, bool, error) {
	if !strings.HasPrefix(line, "[") {
		return nil, false, errors.New("missing timestamp token")
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return nil, false, errors.New("unterminated timestamp token")
	}

	ts, err := parseTimestamp(line[1:end], p.date)
	if err != nil {
		return nil, false, err
	}

	content := strings.TrimSpace(line[end+1:])
	msg := &models.Message{TS: ts}

	switch {
	case strings.HasPrefix(content, "("):
		return msg, false, parseSystemPayload(msg, content)

	case strings.HasPrefix(content, "<"):
		return msg, false, parseUserMessage(msg, content)

	default:
		return parsePlainContent(msg, content)
	}
}

// parseSystemPayload parses `(action_name) <username> {json…}` lines.
func parseSystemPayload(msg *models.Message, content string) error {
	actionEnd := strings.Index(content, ")")
	if actionEnd < 1 {
		return errors.New("unterminated system action")
	}
	action := content[1:actionEnd]
	rest := strings.TrimSpace(content[actionEnd+1:])

	if strings.HasPrefix(rest, "<") {
		if nameEnd := strings.Index(rest, ">"); nameEnd > 0 {
			msg.Username = strings.TrimSpace(rest[1:nameEnd])
			rest = strings.TrimSpace(rest[nameEnd+1:])
		}
	}

	msg.SystemAction = action
	if action == "channel_archive" {
		msg.Type = models.TypeArchive
	} else {
		msg.Type = models.TypeSystem
	}

	// The payload is JSON; keep the raw text when it does not decode.
	msg.Text = rest
	if strings.HasPrefix(rest, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(rest), &payload); err == nil {
			if text, ok := payload["text"].(string); ok {
				msg.Text = text
			}
		}
	}
	return nil
}

// parseUserMessage parses `<username> text…` lines, covering regular
// messages, the edited marker, and the `shared a file:` form.
func parseUserMessage(msg *models.Message, content string) error {
	nameEnd := strings.Index(content, ">")
	if nameEnd < 1 {
		return errors.New("unterminated username")
	}
	msg.Username = strings.TrimSpace(content[1:nameEnd])
	text := strings.TrimSpace(content[nameEnd+1:])

	if stripped, ok := strings.CutSuffix(text, " (edited)"); ok {
		text = stripped
		msg.IsEdited = true
	}

	if name, ok := strings.CutPrefix(text, "shared a file: "); ok {
		msg.Type = models.TypeFileShare
		msg.Text = name
		msg.Files = []models.FileRef{{Name: name}}
		return nil
	}

	msg.Type = models.TypeMessage
	msg.Text = text
	return nil
}

// parsePlainContent parses lines without a bracketed username: joins, the
// `shared file(s) <FID> with text:` form, and bare system lines.
func parsePlainContent(msg *models.Message, content string) (*models.Message, bool, error) {
	if m := fileShareRe.FindStringSubmatch(content); m != nil {
		msg.Type = models.TypeFileShare
		msg.Username = m[1]
		msg.Files = []models.FileRef{{ID: m[2]}}
		return msg, true, nil
	}

	username, rest, ok := strings.Cut(content, " ")
	if !ok {
		return nil, false, errors.New("line matches no grammar")
	}

	msg.Username = username
	msg.Text = rest

	if rest == "joined the channel" {
		msg.Type = models.TypeJoin
		return msg, false, nil
	}

	msg.Type = models.TypeSystem
	msg.SystemAction, _, _ = strings.Cut(rest, " ")
	return msg, false, nil
}
