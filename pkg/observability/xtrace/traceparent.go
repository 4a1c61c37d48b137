package xtrace

import "strings"

// traceparentLen 00-{32}-{16}-{2}
const traceparentLen = 55

// parseTraceparent 解析 W3C traceparent，只接受 v00 的固定格式
func parseTraceparent(s string) (traceID, spanID, flags string, ok bool) {
	if len(s) != traceparentLen || s[2] != '-' || s[35] != '-' || s[52] != '-' {
		return "", "", "", false
	}
	if s[:2] != "00" {
		return "", "", "", false
	}
	traceID, spanID, flags = s[3:35], s[36:52], s[53:55]
	if !validID(traceID) || !validID(spanID) || !isHex(flags) {
		return "", "", "", false
	}
	return strings.ToLower(traceID), strings.ToLower(spanID), strings.ToLower(flags), true
}

// formatTraceparent 生成 v00 traceparent，ID 无效时返回空串
func formatTraceparent(traceID, spanID, flags string) string {
	if len(traceID) != 32 || len(spanID) != 16 || !validID(traceID) || !validID(spanID) {
		return ""
	}
	if len(flags) != 2 || !isHex(flags) {
		flags = "00"
	}
	return "00-" + strings.ToLower(traceID) + "-" + strings.ToLower(spanID) + "-" + strings.ToLower(flags)
}

// validID 非空、十六进制且不全为 0
func validID(id string) bool {
	return isHex(id) && strings.Trim(id, "0") != ""
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
