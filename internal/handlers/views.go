package handlers

import (
	"pharmtrack/internal/medicine"
	"pharmtrack/internal/reminder"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type medicineView struct {
	*medicine.Entry
	State reminder.State `json:"state"`
}
