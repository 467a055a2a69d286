// Package recurrence implements the recurrence-rule text codec and the
// occurrence calculator.
//
// The grammar is a practical subset of RFC 5545 RRULE plus the X-APP-ON /
// X-APP-OFF duty-cycle extension:
//
//	RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH;X-APP-ON=7;X-APP-OFF=21
//	EXDATE:20250301T000000Z
//	RDATE:20250305T000000Z
//
// All functions are pure. Day arithmetic happens on civil dates in a
// caller-supplied *time.Location.
package recurrence
