package util

// FlattenErrors converts a slice of errors into their message strings, used
// for the decode-failure summary on the batch ingest debug log line.
func FlattenErrors(errs ...error) []string {
	if len(errs) == 0 {
		return nil
	}
	strs := make([]string, len(errs))
	for i := range errs {
		strs[i] = errs[i].Error()
	}
	return strs
}
