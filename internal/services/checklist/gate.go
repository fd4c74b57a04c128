package checklist

import (
	"strings"
	"unicode/utf8"
)

// MinQuarantineNotes 是提交隔离所需的检验员说明最小长度（去除首尾空白后的字符数）。
const MinQuarantineNotes = 5

// Decision 是两个终态操作（入库/隔离）的可用性。
type Decision struct {
	CanAccept     bool `json:"can_accept"`
	CanQuarantine bool `json:"can_quarantine"`

	NotesLength   int  `json:"notes_length"`
	NotesTooShort bool `json:"notes_too_short"`
	EmptyCatalog  bool `json:"empty_catalog"`
}

// Evaluate 计算门控结果：
// - 入库：所有项都必须为 Pass（N/A 也会阻止入库），且清单非空；
// - 隔离：所有项都已判定、不满足入库条件，且说明不少于 MinQuarantineNotes 个字符。
//
// RequiredPassed 不参与判断。
func Evaluate(p Progress, notes string) Decision {
	n := utf8.RuneCountInString(strings.TrimSpace(notes))
	d := Decision{
		NotesLength:   n,
		NotesTooShort: n < MinQuarantineNotes,
		EmptyCatalog:  p.Total == 0,
	}
	d.CanAccept = p.AllOK && p.Total > 0
	d.CanQuarantine = p.AllDecided && !p.AllOK && !d.NotesTooShort
	return d
}
