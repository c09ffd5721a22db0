package handlers

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"
)

// maxFormValue bounds scalar multipart fields; release notes fit well
// under this.
const maxFormValue = 64 << 10

// formValue reads one scalar multipart part.
func formValue(part *multipart.Part) string {
	value, err := io.ReadAll(io.LimitReader(part, maxFormValue))
	if err != nil {
		return ""
	}
	return string(value)
}

// formBool reads one boolean multipart part; anything unparseable is
// false.
func formBool(part *multipart.Part) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(formValue(part)))
	return err == nil && b
}

// splitTopics parses a comma-separated topic list.
func splitTopics(value string) []string {
	var topics []string
	for _, t := range strings.Split(value, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
