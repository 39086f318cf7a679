package sqlgen

import (
	"encoding/json"
	"regexp"
	"strings"
)

// cannotAnswerSentinel is what the model is instructed to emit when the
// question is unanswerable from the schema.
const cannotAnswerSentinel = "NOT_POSSIBLE"

var (
	sqlTagRe    = regexp.MustCompile(`(?s)<sql>(.*?)</sql>`)
	paramsTagRe = regexp.MustCompile(`(?s)<params>(.*?)</params>`)
)

// parseTagged extracts the SQL text and parameter list from model output.
// Any missing or malformed tag is a parse failure, not a best-effort scrape.
func parseTagged(output string) (string, []any, *CompileError) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "", nil, &CompileError{Reason: ReasonParse, Detail: "empty model output"}
	}
	if strings.Contains(trimmed, cannotAnswerSentinel) {
		return "", nil, &CompileError{Reason: ReasonCannotAnswer, Detail: "model declared the question unanswerable"}
	}

	sqlMatch := sqlTagRe.FindStringSubmatch(trimmed)
	if sqlMatch == nil {
		return "", nil, &CompileError{Reason: ReasonParse, Detail: "missing <sql> tag"}
	}
	sqlText := strings.TrimSpace(sqlMatch[1])
	if sqlText == "" {
		return "", nil, &CompileError{Reason: ReasonParse, Detail: "empty <sql> tag"}
	}

	paramsMatch := paramsTagRe.FindStringSubmatch(trimmed)
	if paramsMatch == nil {
		return "", nil, &CompileError{Reason: ReasonParse, Detail: "missing <params> tag"}
	}

	params, perr := parseParamList(strings.TrimSpace(paramsMatch[1]))
	if perr != nil {
		return "", nil, perr
	}

	return sqlText, params, nil
}

// parseParamList parses the text form of a literal list. The canonical form
// is a JSON array; single-quoted lists are normalized before giving up.
func parseParamList(text string) ([]any, *CompileError) {
	if text == "" || text == "[]" {
		return []any{}, nil
	}

	params, ok := tryJSONArray(text)
	if !ok {
		// Models occasionally emit python-style single quotes.
		params, ok = tryJSONArray(strings.ReplaceAll(text, "'", `"`))
	}
	if !ok {
		return nil, &CompileError{Reason: ReasonParse, Detail: "parameter list is not a literal list: " + text}
	}
	return params, nil
}

func tryJSONArray(text string) ([]any, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var params []any
	if err := dec.Decode(&params); err != nil {
		return nil, false
	}
	return params, true
}
