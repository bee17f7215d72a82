package querylens

// Option configures a Service
type Option func(s *Service)

// UnscopedSearchMode decides how a search without a run_id is executed
type UnscopedSearchMode string

const (
	// UnscopedMatchNull runs the performance pipeline with a null run id, matching only
	// documents whose run_id is null or missing
	UnscopedMatchNull UnscopedSearchMode = "match-null"
	// UnscopedBrowse runs the generic browse pipeline with the caller's filter
	UnscopedBrowse UnscopedSearchMode = "browse"
)

// WithLogger sets the service logger
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunIDCollection sets the collection run records are read from
func WithRunIDCollection(collection string) Option {
	return func(s *Service) {
		if collection != "" {
			s.runIDCollection = collection
		}
	}
}

// WithMaxRunIDs caps the number of run ids returned
func WithMaxRunIDs(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRunIDs = n
		}
	}
}

// WithUnscopedSearch sets how searches without a run_id are executed
func WithUnscopedSearch(mode UnscopedSearchMode) Option {
	return func(s *Service) {
		if mode == UnscopedBrowse || mode == UnscopedMatchNull {
			s.unscoped = mode
		}
	}
}
