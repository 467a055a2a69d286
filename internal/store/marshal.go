package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

// Times are stored as INTEGER unix nanoseconds and read back in UTC.
func toUnixNano(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalDoses(doses []domain.DoseTime) (string, error) {
	if doses == nil {
		doses = []domain.DoseTime{}
	}
	data, err := json.Marshal(doses)
	if err != nil {
		return "", fmt.Errorf("marshal doses: %w", err)
	}
	return string(data), nil
}

func unmarshalDoses(data string) ([]domain.DoseTime, error) {
	doses := []domain.DoseTime{}
	if data == "" {
		return doses, nil
	}
	if err := json.Unmarshal([]byte(data), &doses); err != nil {
		return nil, fmt.Errorf("unmarshal doses: %w", err)
	}
	return doses, nil
}

func marshalClinical(rules *domain.ClinicalRules) (sql.NullString, error) {
	data, err := domain.EncodeClinicalRules(rules)
	if err != nil {
		return sql.NullString{}, err
	}
	if data == nil {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalClinical(ns sql.NullString) (*domain.ClinicalRules, error) {
	if !ns.Valid {
		return nil, nil
	}
	return domain.DecodeClinicalRules([]byte(ns.String))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
