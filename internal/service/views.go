package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/davomat-bot/internal/dto"
	"github.com/noah-isme/davomat-bot/internal/models"
	"github.com/noah-isme/davomat-bot/internal/token"
)

// Callback action prefixes. Every identifier travelling through an action
// is an encoded token; the session machine decodes and validates it against
// the schedule or roster before acting.
const (
	actionNoop       = "noop"
	actionMenu       = "attendance"
	actionJournal    = "jurnal"
	actionBack       = "back"
	actionDone       = "done"
	prefixSubject    = "subject_"
	prefixToggle     = "toggle_"
	prefixLate       = "late_"
	prefixReason     = "reason_"
	prefixClear      = "clear_"
	prefixMonth      = "month_"
	prefixDate       = "date_"
	prefixJournalSub = "jurnalsubject_"
)

func statusEmoji(rec models.AttendanceRecord) string {
	switch rec.Status {
	case models.StatusPresent:
		return "✅"
	case models.StatusLate:
		return "⏰"
	case models.StatusExcused:
		return "📝"
	default:
		return "❌"
	}
}

func mainMenuView(role models.Role, weekday string) dto.View {
	var keyboard [][]dto.Button
	if role == models.RoleAdmin {
		keyboard = append(keyboard, []dto.Button{{Label: "Davomat qilish", Action: actionMenu}})
	}
	keyboard = append(keyboard, []dto.Button{{Label: "Davomat jurnali", Action: actionJournal}})
	return dto.View{
		Text:     fmt.Sprintf("📚 Bugungi kun (%s):", weekday),
		Keyboard: keyboard,
	}
}

func subjectListView(subjects []string) dto.View {
	keyboard := make([][]dto.Button, 0, len(subjects)+1)
	for _, s := range subjects {
		keyboard = append(keyboard, []dto.Button{{Label: s, Action: prefixSubject + token.Encode(s)}})
	}
	keyboard = append(keyboard, []dto.Button{{Label: "◀️ Orqaga", Action: actionBack}})
	return dto.View{Text: "Fanlardan birini tanlang:", Keyboard: keyboard}
}

func rosterView(subject string, sheet models.Sheet, roster []string) dto.View {
	keyboard := make([][]dto.Button, 0, len(roster)+1)
	for _, student := range roster {
		rec := sheet[student]
		label := fmt.Sprintf("%s %s", statusEmoji(rec), student)
		if rec.Reason != "" {
			label += fmt.Sprintf(" (%s)", rec.Reason)
		}
		tok := token.Encode(student)
		row := []dto.Button{
			{Label: label, Action: prefixToggle + tok},
			{Label: "⏰", Action: prefixLate + tok},
			{Label: "✏️", Action: prefixReason + tok},
		}
		if rec.Status == models.StatusExcused {
			row = append(row, dto.Button{Label: "🗑", Action: prefixClear + tok})
		}
		keyboard = append(keyboard, row)
	}
	keyboard = append(keyboard, []dto.Button{
		{Label: "✅ Tayyor", Action: actionDone},
		{Label: "◀️ Orqaga", Action: actionBack},
	})
	return dto.View{
		Text:     fmt.Sprintf("📘 Fan: %s\nStudentlarni belgilang:", subject),
		Keyboard: keyboard,
	}
}

var weekdayHeaders = []string{"Du", "Se", "Ch", "Pa", "Ju", "Sh", "Ya"}

func calendarView(grid models.MonthGrid) dto.View {
	keyboard := make([][]dto.Button, 0, len(grid.Weeks)+3)

	keyboard = append(keyboard, []dto.Button{
		{Label: "⏪", Action: fmt.Sprintf("%s%d_%d", prefixMonth, grid.Prev.Year, int(grid.Prev.Month))},
		{Label: fmt.Sprintf("%s %d", grid.Ref.Month.String(), grid.Ref.Year), Action: actionNoop},
		{Label: "⏩", Action: fmt.Sprintf("%s%d_%d", prefixMonth, grid.Next.Year, int(grid.Next.Month))},
	})

	header := make([]dto.Button, 0, 7)
	for _, d := range weekdayHeaders {
		header = append(header, dto.Button{Label: d, Action: actionNoop})
	}
	keyboard = append(keyboard, header)

	for _, week := range grid.Weeks {
		row := make([]dto.Button, 0, 7)
		for _, cell := range week {
			switch cell.State {
			case models.CellActive:
				date := fmt.Sprintf("%d-%02d-%02d", grid.Ref.Year, int(grid.Ref.Month), cell.Day)
				row = append(row, dto.Button{Label: fmt.Sprintf("%2d", cell.Day), Action: prefixDate + date})
			case models.CellInactive:
				row = append(row, dto.Button{Label: strikethrough(cell.Day), Action: actionNoop})
			default:
				row = append(row, dto.Button{Label: " ", Action: actionNoop})
			}
		}
		keyboard = append(keyboard, row)
	}

	keyboard = append(keyboard, []dto.Button{{Label: "◀️ Orqaga", Action: actionBack}})
	return dto.View{Text: "📅 Kunni tanlang:", Keyboard: keyboard}
}

func strikethrough(day int) string {
	var sb strings.Builder
	for _, ch := range fmt.Sprintf("%d", day) {
		sb.WriteRune(ch)
		sb.WriteRune('̶')
	}
	return sb.String()
}

func dateSubjectsView(date time.Time, subjects []string) dto.View {
	iso := date.Format("2006-01-02")
	keyboard := make([][]dto.Button, 0, len(subjects)+1)
	for _, s := range subjects {
		keyboard = append(keyboard, []dto.Button{{
			Label:  s,
			Action: fmt.Sprintf("%s%s_%s", prefixJournalSub, token.Encode(s), iso),
		}})
	}
	keyboard = append(keyboard, []dto.Button{{Label: "◀️ Orqaga", Action: actionBack}})
	return dto.View{Text: "Ko'rmoqchi bo'lgan fanni tanlang:", Keyboard: keyboard}
}

func journalReportView(subject string, date time.Time, sheet models.Sheet, roster []string) dto.View {
	lines := []string{
		fmt.Sprintf("📘 Fan bo'yicha davomat: %s", subject),
		fmt.Sprintf("📅 Sana: %s", date.Format("02.01.2006")),
		"",
	}
	if len(sheet) == 0 {
		lines = append(lines, "Davomat bo'yicha ma'lumot mavjud emas.")
	} else {
		for _, student := range roster {
			rec, ok := sheet[student]
			if !ok {
				continue
			}
			line := fmt.Sprintf("%s: %s", student, statusEmoji(rec))
			if rec.Reason != "" {
				line += fmt.Sprintf(" — %s", rec.Reason)
			}
			lines = append(lines, line)
		}
	}
	return dto.View{
		Text:     strings.Join(lines, "\n"),
		Keyboard: [][]dto.Button{{{Label: "◀️ Orqaga", Action: actionBack}}},
	}
}

func textView(text string) dto.View {
	return dto.View{Text: text}
}
