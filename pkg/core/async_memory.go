package core

import (
	"context"
	"sync"
)

// AsyncService provides asynchronous memory operations.
//
// It wraps the synchronous Service and executes each operation in its own
// goroutine, returning a channel that receives the result when the
// operation completes. Wait blocks until all started operations finish.
//
// Example:
//
//	async := core.NewAsyncService(service)
//	defer async.Close()
//
//	saved := async.SaveTurnAsync(ctx, "I moved to Berlin", "Noted!",
//	    core.WithConversation(conv.ID))
//	result := <-saved
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncService struct {
	*Service
	wg sync.WaitGroup
}

// NewAsyncService wraps a Service for asynchronous use.
func NewAsyncService(service *Service) *AsyncService {
	return &AsyncService{Service: service}
}

// SaveTurnResult contains the result of an asynchronous SaveTurn.
type SaveTurnResult struct {
	// Timestamp is the stored (or deduplicated) memory timestamp.
	Timestamp string

	// Error is the error returned by the operation (nil on success).
	Error error
}

// ContextResultAsync contains the result of an asynchronous GetContext.
type ContextResultAsync struct {
	// Result is the assembled context (nil if an error occurred).
	Result *ContextResult

	// Error is the error returned by the operation (nil on success).
	Error error
}

// SearchResultAsync contains the result of an asynchronous SearchMemories.
type SearchResultAsync struct {
	// Memories is the list of matching memories.
	Memories []*Memory

	// Error is the error returned by the operation (nil on success).
	Error error
}

// SaveTurnAsync saves a turn asynchronously.
func (as *AsyncService) SaveTurnAsync(ctx context.Context, userMessage, aiResponse string, opts ...Option) <-chan *SaveTurnResult {
	resultChan := make(chan *SaveTurnResult, 1)
	as.wg.Add(1)

	go func() {
		defer as.wg.Done()
		timestamp, err := as.SaveTurn(ctx, userMessage, aiResponse, opts...)
		resultChan <- &SaveTurnResult{
			Timestamp: timestamp,
			Error:     err,
		}
		close(resultChan)
	}()

	return resultChan
}

// GetContextAsync assembles context asynchronously.
func (as *AsyncService) GetContextAsync(ctx context.Context, query string, opts ...Option) <-chan *ContextResultAsync {
	resultChan := make(chan *ContextResultAsync, 1)
	as.wg.Add(1)

	go func() {
		defer as.wg.Done()
		result, err := as.GetContext(ctx, query, opts...)
		resultChan <- &ContextResultAsync{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// SearchMemoriesAsync searches memories asynchronously.
func (as *AsyncService) SearchMemoriesAsync(ctx context.Context, keyword string, opts ...Option) <-chan *SearchResultAsync {
	resultChan := make(chan *SearchResultAsync, 1)
	as.wg.Add(1)

	go func() {
		defer as.wg.Done()
		memories, err := as.SearchMemories(ctx, keyword, opts...)
		resultChan <- &SearchResultAsync{
			Memories: memories,
			Error:    err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait blocks until all asynchronous operations have completed.
func (as *AsyncService) Wait() {
	as.wg.Wait()
}

// Close waits for pending operations and closes the underlying service.
func (as *AsyncService) Close() error {
	as.Wait()
	return as.Service.Close()
}
