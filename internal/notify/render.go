package notify

import (
	"fmt"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
)

// Level is the user's notification preference.
type Level string

const (
	LevelNormal Level = "normal"
	LevelAlarm  Level = "alarm"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l == LevelNormal || l == LevelAlarm
}

const (
	// SeriesLength is the number of requests in one alarm series.
	SeriesLength = 7
	// SeriesSpacing separates consecutive requests of a series.
	SeriesSpacing = 60 * time.Second
)

// User-info keys carried by requests.
const (
	InfoSeriesID = "alarmSeriesId"
	InfoPlanned  = "planned" // owned by the planner; Apply may remove it
	InfoOrigin   = "origin"
	InfoMedicine = "medicineId"
	InfoTherapy  = "therapyId"
)

// Actions offered on alarm requests.
const (
	ActionStop   = "stop"
	ActionSnooze = "snooze"
)

// Request is one concrete local notification.
type Request struct {
	ID          string            `json:"id"`
	CandidateID string            `json:"candidateId"`
	Origin      Origin            `json:"origin"`
	FireAt      time.Time         `json:"fireAt"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	SeriesID    string            `json:"seriesId,omitempty"`
	Actions     []string          `json:"actions,omitempty"`
	UserInfo    map[string]string `json:"userInfo"`
}

// Render turns a candidate into requests. Normal level yields one request.
// Alarm level expands a dose reminder into a series sharing one id; stock
// reminders stay single. An immediate alert is handed over to the center
// once scheduled: later plans neither remove nor repeat it.
func Render(c Candidate, level Level) []Request {
	info := map[string]string{
		InfoOrigin:   string(c.Origin),
		InfoMedicine: c.MedicineID,
	}
	if c.Origin != OriginImmediate {
		info[InfoPlanned] = "true"
	}
	if c.TherapyID != "" {
		info[InfoTherapy] = c.TherapyID
	}
	if level != LevelAlarm || c.Kind != KindDose {
		return []Request{{
			ID:          c.ID,
			CandidateID: c.ID,
			Origin:      c.Origin,
			FireAt:      c.FireAt,
			Title:       c.Title,
			Body:        c.Body,
			UserInfo:    info,
		}}
	}
	return series(opkey.Derive("alarm", c.ID), c.ID, c.Origin, c.Title, c.Body, c.FireAt, info)
}

// series builds SeriesLength requests SeriesSpacing apart from start.
func series(seriesID, candidateID string, origin Origin, title, body string, start time.Time, info map[string]string) []Request {
	out := make([]Request, 0, SeriesLength)
	for i := 0; i < SeriesLength; i++ {
		ui := make(map[string]string, len(info)+1)
		for k, v := range info {
			ui[k] = v
		}
		ui[InfoSeriesID] = seriesID
		out = append(out, Request{
			ID:          fmt.Sprintf("%s#%d", seriesID, i),
			CandidateID: candidateID,
			Origin:      origin,
			FireAt:      start.Add(time.Duration(i) * SeriesSpacing),
			Title:       title,
			Body:        body,
			SeriesID:    seriesID,
			Actions:     []string{ActionStop, ActionSnooze},
			UserInfo:    ui,
		})
	}
	return out
}
