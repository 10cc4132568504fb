package history

// NotFoundError is returned when an entry doesn't exist in the log.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "history entry not found"
	}

	return "history entry not found: " + e.ID
}
