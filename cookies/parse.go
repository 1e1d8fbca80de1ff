package cookies

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ytget/ytstreams/errs"
)

// ParseCookieString splits text on ';' and parses each segment as a single
// name=value assignment. Malformed segments are dropped. Values are kept as
// written, surrounding double quotes included.
func ParseCookieString(text string) []Record {
	records := []Record{}
	for _, seg := range strings.Split(text, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		parsed, err := http.ParseCookie(seg)
		if err != nil || len(parsed) != 1 || parsed[0].Name == "" {
			continue
		}
		_, raw, _ := strings.Cut(seg, "=")
		records = append(records, Record{Name: parsed[0].Name, Value: strings.TrimSpace(raw)})
	}
	return records
}

const httpOnlyPrefix = "#HttpOnly_"

// ParseNetscape reads a Netscape cookies.txt document. Lines prefixed with
// #HttpOnly_ are kept with HTTPOnly set; other comments and malformed lines
// are skipped.
func ParseNetscape(r io.Reader) ([]Record, error) {
	records := []Record{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = line[len(httpOnlyPrefix):]
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 || fields[5] == "" {
			continue
		}
		expiry, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
		if err != nil {
			continue
		}

		rec := Record{
			Name:     fields[5],
			Value:    fields[6],
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			HTTPOnly: httpOnly,
			HostOnly: !strings.EqualFold(fields[1], "TRUE"),
		}
		if expiry > 0 {
			v := float64(expiry)
			rec.ExpirationDate = &v
		} else {
			rec.Session = true
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read cookies.txt: %v", errs.ErrInvalidInput, err)
	}
	return records, nil
}

// DecodeRecords decodes a cookie source body. Accepted shapes are an object
// with a "cookies" array or a bare array; anything else fails with
// errs.ErrInvalidUpstreamResponse.
func DecodeRecords(body []byte) ([]Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty cookies body", errs.ErrInvalidUpstreamResponse)
	}

	raw := json.RawMessage(body)
	if body[0] == '{' {
		var envelope struct {
			Cookies json.RawMessage `json:"cookies"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidUpstreamResponse, err)
		}
		raw = bytes.TrimSpace(envelope.Cookies)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: invalid cookies API response", errs.ErrInvalidUpstreamResponse)
	}

	records := []Record{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidUpstreamResponse, err)
	}
	return records, nil
}

// LooksLikeJSON reports whether data is a JSON cookie document rather than a
// cookies.txt file.
func LooksLikeJSON(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && (data[0] == '{' || data[0] == '[')
}
