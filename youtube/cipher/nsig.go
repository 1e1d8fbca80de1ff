package cipher

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nFunctionNameRes = []*regexp.Regexp{
	// b=XY[0](b)||ZZ, with an explicit fallback symbol
	regexp.MustCompile(`\.get\("n"\)\)&&\(b=([a-zA-Z0-9$]{0,3})\[(\d+)\](.+)\|\|([a-zA-Z0-9]{0,3})`),
	regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\[(\d+)\]\([a-zA-Z0-9$]{1,}\).+\|\|([a-zA-Z0-9$]{1,})`),
	// b=XY(b)
	regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
	regexp.MustCompile(`\.get\("n"\).*?&&.*?([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
}

// findNFunction returns the source of the n-parameter transform.
func findNFunction(js []byte) (string, error) {
	for _, re := range nFunctionNameRes {
		m := re.FindSubmatch(js)
		if len(m) == 0 {
			continue
		}
		name := string(m[1])
		switch len(m) {
		case 5:
			if idx, err := strconv.Atoi(string(m[2])); err == nil && idx == 0 && len(m[4]) > 0 {
				name = string(m[4])
			}
		case 4:
			if idx, err := strconv.Atoi(string(m[2])); err == nil && idx == 0 && len(m[3]) > 0 {
				name = string(m[3])
			}
		}
		if src, err := extractFunction(js, name); err == nil {
			return src, nil
		}
	}
	return "", errors.New("unable to extract n-function name")
}

// extractFunction returns `name=function(...){...}` or `function name(...){...}`
// from js, matching braces outside string literals.
func extractFunction(js []byte, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty function name")
	}
	start := -1
	for _, def := range [][]byte{
		[]byte(name + "=function("),
		[]byte(name + " = function("),
		[]byte("function " + name + "("),
	} {
		if start = bytes.Index(js, def); start >= 0 {
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("function %s not found", name)
	}

	open := bytes.IndexByte(js[start:], '{')
	if open < 0 {
		return "", fmt.Errorf("function %s has no body", name)
	}
	pos := start + open + 1
	var strChar byte
	for depth := 1; depth > 0; pos++ {
		if pos >= len(js) {
			return "", fmt.Errorf("unterminated function %s", name)
		}
		b := js[pos]
		switch b {
		case '{':
			if strChar == 0 {
				depth++
			}
		case '}':
			if strChar == 0 {
				depth--
			}
		case '`', '"', '\'':
			if pos > 1 && js[pos-1] == '\\' && js[pos-2] != '\\' {
				continue
			}
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		}
	}

	src := string(js[start:pos])
	if strings.HasPrefix(src, "function ") {
		// declaration form; turn it into an expression
		src = "function" + src[len("function "+name):]
	} else {
		src = src[strings.Index(src, "function("):]
	}
	return src, nil
}
