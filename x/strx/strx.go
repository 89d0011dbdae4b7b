package strx

// Coalesce picks s unless it is empty, in which case the fallback wins.
func Coalesce(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
