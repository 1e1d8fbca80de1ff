package cipher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// op is one step of the signature transform.
type op func([]byte) []byte

func reverseOp(bs []byte) []byte {
	for l, r := 0, len(bs)-1; l < r; l, r = l+1, r-1 {
		bs[l], bs[r] = bs[r], bs[l]
	}
	return bs
}

func spliceOp(n int) op {
	return func(bs []byte) []byte {
		if n < 0 || n > len(bs) {
			return bs
		}
		return bs[n:]
	}
}

func swapOp(n int) op {
	return func(bs []byte) []byte {
		if len(bs) <= 1 {
			return bs
		}
		pos := n % len(bs)
		if pos < 0 {
			pos += len(bs)
		}
		bs[0], bs[pos] = bs[pos], bs[0]
		return bs
	}
}

func applyOps(ops []op, s string) string {
	bs := []byte(s)
	for _, o := range ops {
		bs = o(bs)
	}
	return string(bs)
}

const (
	jsVarStr   = `[a-zA-Z_\$][a-zA-Z_0-9\$]*`
	reverseStr = `:function\(a\)\{(?:return )?a\.reverse\(\)\}`
	spliceStr  = `:function\(a,b\)\{a\.splice\(0,b\)\}`
	swapStr    = `:function\(a,b\)\{var c=a\[0\];a\[0\]=a\[b(?:%a\.length)?\];a\[b(?:%a\.length)?\]=c(?:;return a)?\}`
)

var (
	// var XY={ab:function(a){a.reverse()},cd:function(a,b){a.splice(0,b)},...}
	helperObjRe = regexp.MustCompile(fmt.Sprintf(
		`(?:var|let|const)\s+(%s)=\{((?:(?:%s%s|%s%s|%s%s),?\n?)+)\}\s*;?`,
		jsVarStr, jsVarStr, swapStr, jsVarStr, spliceStr, jsVarStr, reverseStr))
	reverseKeyRe = regexp.MustCompile(fmt.Sprintf(`(?m)(?:^|,)(%s)%s`, jsVarStr, reverseStr))
	spliceKeyRe  = regexp.MustCompile(fmt.Sprintf(`(?m)(?:^|,)(%s)%s`, jsVarStr, spliceStr))
	swapKeyRe    = regexp.MustCompile(fmt.Sprintf(`(?m)(?:^|,)(%s)%s`, jsVarStr, swapStr))

	// function(a){a=a.split("");XY.ab(a,3);...;return a.join("")}
	helperCallFuncRes = []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(
			`function(?:\s+%s)?\(a\)\{a=a\.split\([^\)]*\);\s*((?:(?:a=)?%s(?:\.%s|\[[^\]]+\])\(a,\d+\);?\s*)+)return a\.join\([^\)]*\)\}`,
			jsVarStr, jsVarStr, jsVarStr)),
		regexp.MustCompile(fmt.Sprintf(
			`%s\s*=\s*function\(a\)\{a=a\.split\([^\)]*\);\s*((?:(?:a=)?%s(?:\.%s|\[[^\]]+\])\(a,\d+\);?\s*)+)return a\.join\([^\)]*\)\}`,
			jsVarStr, jsVarStr, jsVarStr)),
	}

	// function(a){a=a.split("");a.reverse();a.splice(0,3);return a.join("")}
	inlineFuncRe   = regexp.MustCompile(`\(a\)\{a=a\.split\(""\);((?:a\.reverse\(\)|a\.splice\(0,\d+\)|var c=a\[0\];a\[0\]=a\[\d+(?:%a\.length)?\];a\[\d+(?:%a\.length)?\]=c|;|\s)+)return a\.join\(""\)\}`)
	inlineSpliceRe = regexp.MustCompile(`^a\.splice\(0,(\d+)\)$`)
	inlineSwapRe   = regexp.MustCompile(`^a\[0\]=a\[(\d+)(?:%a\.length)?\]$`)
)

// parseSignatureOps derives the signature transform from the player script
// without executing it.
func parseSignatureOps(js []byte) ([]op, error) {
	if ops, err := parseHelperOps(js); err == nil {
		return ops, nil
	}
	if ops, err := parseInlineOps(js); err == nil {
		return ops, nil
	}
	return nil, NewError(ErrCodeRegexParsingFailed, "signature transform not found in player script")
}

// parseHelperOps handles the helper-object form, where the transform calls
// methods of an object literal holding reverse, splice and swap.
func parseHelperOps(js []byte) ([]op, error) {
	obj := helperObjRe.FindSubmatch(js)
	var body []byte
	for _, re := range helperCallFuncRes {
		if m := re.FindSubmatch(js); len(m) > 1 {
			body = m[1]
			break
		}
	}
	if len(obj) < 3 || len(body) == 0 {
		return nil, fmt.Errorf("helper object or transform function not found")
	}

	objName, objBody := obj[1], obj[2]
	var reverseKey, spliceKey, swapKey string
	if m := reverseKeyRe.FindSubmatch(objBody); len(m) > 1 {
		reverseKey = string(m[1])
	}
	if m := spliceKeyRe.FindSubmatch(objBody); len(m) > 1 {
		spliceKey = string(m[1])
	}
	if m := swapKeyRe.FindSubmatch(objBody); len(m) > 1 {
		swapKey = string(m[1])
	}
	keys := strings.Join(nonEmptyQuoted(reverseKey, spliceKey, swapKey), "|")
	if keys == "" {
		return nil, fmt.Errorf("helper object has no known methods")
	}

	callRe, err := regexp.Compile(fmt.Sprintf(
		`(?:a=)?%s(?:\.(%s)|\[(?:"(%s)"|'(%s)')\])\(a,(\d+)\)`,
		regexp.QuoteMeta(string(objName)), keys, keys, keys))
	if err != nil {
		return nil, err
	}

	var ops []op
	for _, m := range callRe.FindAllSubmatch(body, -1) {
		key := firstNonEmpty(m[1], m[2], m[3])
		arg, _ := strconv.Atoi(string(m[4]))
		switch key {
		case reverseKey:
			ops = append(ops, reverseOp)
		case spliceKey:
			ops = append(ops, spliceOp(arg))
		case swapKey:
			ops = append(ops, swapOp(arg))
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("empty helper op list")
	}
	return ops, nil
}

// parseInlineOps handles transforms that manipulate the array directly.
func parseInlineOps(js []byte) ([]op, error) {
	m := inlineFuncRe.FindSubmatch(js)
	if len(m) < 2 {
		return nil, fmt.Errorf("inline transform not found")
	}

	var ops []op
	for _, stmt := range strings.Split(string(m[1]), ";") {
		stmt = strings.TrimSpace(stmt)
		switch {
		case stmt == "a.reverse()":
			ops = append(ops, reverseOp)
		case inlineSpliceRe.MatchString(stmt):
			n, _ := strconv.Atoi(inlineSpliceRe.FindStringSubmatch(stmt)[1])
			ops = append(ops, spliceOp(n))
		case inlineSwapRe.MatchString(stmt):
			n, _ := strconv.Atoi(inlineSwapRe.FindStringSubmatch(stmt)[1])
			ops = append(ops, swapOp(n))
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("empty inline op list")
	}
	return ops, nil
}

func nonEmptyQuoted(keys ...string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, regexp.QuoteMeta(k))
		}
	}
	return out
}

func firstNonEmpty(groups ...[]byte) string {
	for _, g := range groups {
		if len(g) > 0 {
			return string(g)
		}
	}
	return ""
}
