package postgres

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/types"
)

// commandTemplate is the pg_cron command of a recurring job. Every run bumps the entry's
// fired counter and sends it as the count of the metadata header, so the header advances
// even though the command itself never changes.
const commandTemplate = `WITH fired AS (UPDATE quirrel_schema.cron_owners SET fired = fired + 1 WHERE name = %L RETURNING fired) ` +
	`SELECT net.http_post(url := %L, body := %L::jsonb, ` +
	`headers := %L::jsonb || jsonb_build_object('` + types.MetaHeader + `', (%L::jsonb || jsonb_build_object('count', fired.fired))::text)) FROM fired`

// httpPostCommand renders commandTemplate in SQL. Postgres quotes every value with %L,
// so nothing supplied by callers is ever spliced into SQL text.
var httpPostCommand = `format('` + strings.ReplaceAll(commandTemplate, "'", "''") + `', $1::text, $3::text, $4::text, $5::text, $6::text)`

const literal = `(E?'(?:[^']|'')*')`

var commandPattern = regexp.MustCompile(
	`^` + strings.ReplaceAll(regexp.QuoteMeta(commandTemplate), "%L", literal) + `$`,
)

// parseCommand recovers the action from a command built with httpPostCommand. The
// metadata header comes back as registered; the caller applies the fired count.
func parseCommand(command string) (types.HTTPAction, error) {
	match := commandPattern.FindStringSubmatch(strings.TrimSpace(command))
	if match == nil {
		return types.HTTPAction{}, fmt.Errorf("%w: unrecognized command", custom_errors.ErrCorruptRegistryEntry)
	}

	url := unquoteLiteral(match[2])
	body := unquoteLiteral(match[3])

	var headers map[string]string
	if err := json.Unmarshal([]byte(unquoteLiteral(match[4])), &headers); err != nil {
		return types.HTTPAction{}, fmt.Errorf("%w: headers: %v", custom_errors.ErrCorruptRegistryEntry, err)
	}
	if headers == nil {
		headers = make(map[string]string)
	}
	headers[types.MetaHeader] = unquoteLiteral(match[5])

	contentType := headers[types.ContentTypeHeader]
	delete(headers, types.ContentTypeHeader)

	return types.HTTPAction{
		Method:      http.MethodPost,
		URL:         url,
		Headers:     headers,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// commandHeaders splits the action headers into the static part and the metadata header
// the command rewrites on every run.
func commandHeaders(action types.HTTPAction) (headers string, meta string, err error) {
	all := action.AllHeaders()
	meta = all[types.MetaHeader]
	if meta == "" {
		meta = "{}"
	}
	delete(all, types.MetaHeader)

	raw, err := json.Marshal(all)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal headers: %w", err)
	}
	return string(raw), meta, nil
}

// unquoteLiteral reverses quote_literal: E'' strings double their backslashes, every
// literal doubles its quotes.
func unquoteLiteral(quoted string) string {
	escaped := strings.HasPrefix(quoted, "E")
	quoted = strings.TrimPrefix(quoted, "E")
	quoted = quoted[1 : len(quoted)-1]
	quoted = strings.ReplaceAll(quoted, "''", "'")
	if escaped {
		quoted = strings.ReplaceAll(quoted, `\\`, `\`)
	}
	return quoted
}
