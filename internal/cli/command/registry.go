package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// FileMarker stands in for a value that will be read from a *_file param.
const FileMarker = "_file_"

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	sourceFields := []Field{
		{Name: "id", Aliases: []string{"attempt_id"}, Prompt: "attempt_id", Type: FieldString, Required: true},
		{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
		{Name: "source_code", Aliases: []string{"code"}, Prompt: "source_code", Type: FieldString, Required: true},
		{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile, Required: false},
	}
	idField := []Field{
		{Name: "id", Aliases: []string{"attempt_id"}, Prompt: "attempt_id", Type: FieldString, Required: true},
	}

	commands := []Command{
		{
			Service:      "languages",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/languages",
		},
		{
			Service:      "attempt",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/attempts",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "challenge_id", Aliases: []string{"challenge"}, Prompt: "challenge_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "attempt",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/attempts",
			RequiresAuth: true,
		},
		{
			Service:      "attempt",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/attempts/:id",
			RequiresAuth: true,
			Fields:       idField,
		},
		{
			Service:      "attempt",
			Action:       "test",
			Method:       "POST",
			PathTemplate: "/api/v1/attempts/:id/tests",
			RequiresAuth: true,
			Fields:       sourceFields,
		},
		{
			Service:      "attempt",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/attempts/:id/submissions",
			RequiresAuth: true,
			Fields:       sourceFields,
		},
		{
			Service:      "attempt",
			Action:       "reset",
			Method:       "POST",
			PathTemplate: "/api/v1/attempts/:id/reset",
			RequiresAuth: true,
			Fields:       idField,
		},
		{
			Service:      "attempt",
			Action:       "watch",
			Method:       "GET",
			PathTemplate: "/api/v1/attempts/:id/watch",
			RequiresAuth: true,
			Fields:       idField,
			Stream:       true,
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys returns the registry keys sorted for help output.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for k := range commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyShortcuts marks source_code for file loading when only source_file was given.
func ApplyShortcuts(cmd Command, params Params) {
	params.Canonicalize(cmd.Fields)
	if params.Get("source_file") != "" && params.Get("source_code") == "" {
		params.Set("source_code", FileMarker)
	}
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := strings.TrimSpace(params.Get(key))
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Service != "attempt" {
		return nil, nil
	}
	switch cmd.Action {
	case "create":
		return map[string]string{
			"challenge_id": params.Get("challenge_id"),
		}, nil
	case "test", "submit":
		return buildSourcePayload(params)
	}
	return nil, nil
}

func buildSourcePayload(params Params) (interface{}, error) {
	sourceCode := params.Get("source_code")
	if (sourceCode == "" || sourceCode == FileMarker) && params.Get("source_file") != "" {
		var err error
		sourceCode, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if sourceCode == "" || sourceCode == FileMarker {
		return nil, fmt.Errorf("source_code is required")
	}
	return map[string]string{
		"source_code": sourceCode,
		"language":    params.Get("language"),
	}, nil
}
