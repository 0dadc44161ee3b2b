package chat

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// DefaultMask 是屏蔽词被替换成的默认记号。
const DefaultMask = "***"

// Censor 按聊天室的屏蔽词列表替换消息内容。
// 匹配区分大小写，按子串匹配，不识别单词边界。
type Censor struct {
	mask string
}

// NewCensor 创建 Censor，mask 为空时使用 DefaultMask。
func NewCensor(mask string) *Censor {
	if mask == "" {
		mask = DefaultMask
	}
	return &Censor{mask: mask}
}

// Mask 返回替换记号。
func (c *Censor) Mask() string {
	return c.mask
}

// Apply 依次把 text 中出现的每个屏蔽词替换为 mask。
// words 需已按 NormalizeWords 处理。
func (c *Censor) Apply(text string, words []string) string {
	for _, w := range words {
		if w == "" {
			continue
		}
		text = strings.ReplaceAll(text, w, c.mask)
	}
	return text
}

// NormalizeWords 去掉空串与重复项，并按升序排列。
func NormalizeWords(words []string) []string {
	out := lo.Uniq(lo.Compact(words))
	slices.Sort(out)
	return out
}

// ParseWords 解析 CREATE 消息中以逗号分隔的屏蔽词列表。
func ParseWords(list string) []string {
	if list == "" {
		return nil
	}
	return NormalizeWords(strings.Split(list, ","))
}
