package xqueue

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// NewID 随机任务 ID
func NewID() string {
	return uuid.NewString()
}

// DeterministicID 由 kind 与各部分生成稳定 ID
//
// 同一组输入始终得到同一 ID，例如收件人、主题与逻辑时间戳，
// 重复提交会被存储去重。
func DeterministicID(kind string, parts ...string) string {
	h := xxhash.New()
	_, _ = h.WriteString(kind)
	for _, p := range parts {
		// 分隔符避免 ("ab","c") 与 ("a","bc") 碰撞
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(p)
	}
	var b strings.Builder
	b.Grow(len(kind) + 17)
	b.WriteString(kind)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(h.Sum64(), 16))
	return b.String()
}
