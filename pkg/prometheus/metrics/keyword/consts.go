package keyword

var (
	HandlesCreated    = "shared_handle_created_total"      // num of owning constructions (control blocks allocated)
	HandlesCloned     = "shared_handle_cloned_total"       // num of shares added by Clone/TryClone
	HandlesReleased   = "shared_handle_released_total"     // num of shares given up
	HandlesFreed      = "shared_handle_freed_total"        // num of pointees freed (count reached zero)
	AllocFailed       = "shared_handle_alloc_failed_total" // num of refused control block allocations
	LiveControlBlocks = "shared_handle_live"               // control blocks currently alive
	HttpRequests      = "shared_handle_http_requests_total"
)
