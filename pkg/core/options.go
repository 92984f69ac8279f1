package core

// callOptions carries the per-call settings of Service operations.
type callOptions struct {
	conversationID int64
	maxMemories    int
	tokensInput    int
	tokensOutput   int
	cost           float64
	metadata       map[string]interface{}
}

// Option configures a single Service call.
type Option func(*callOptions)

// WithConversation scopes the call to a conversation. Without it the call
// operates on global memories.
func WithConversation(id int64) Option {
	return func(o *callOptions) {
		o.conversationID = id
	}
}

// WithMaxMemories overrides the configured context budget for this call.
func WithMaxMemories(n int) Option {
	return func(o *callOptions) {
		o.maxMemories = n
	}
}

// WithUsage records token and cost accounting on the saved turn.
func WithUsage(tokensInput, tokensOutput int, cost float64) Option {
	return func(o *callOptions) {
		o.tokensInput = tokensInput
		o.tokensOutput = tokensOutput
		o.cost = cost
	}
}

// WithMetadata attaches arbitrary metadata to the saved turn.
func WithMetadata(metadata map[string]interface{}) Option {
	return func(o *callOptions) {
		o.metadata = metadata
	}
}

func (s *Service) applyOptions(opts []Option) *callOptions {
	options := &callOptions{
		conversationID: GlobalConversation,
		maxMemories:    s.config.Retrieval.MaxMemories,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.maxMemories <= 0 {
		options.maxMemories = s.config.Retrieval.MaxMemories
	}
	return options
}
