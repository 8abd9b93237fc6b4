// Package vmcache provides machine-aware caches built on the cache package.
//
// StatusCache holds provider status documents and picks each entry's TTL from
// the document's status field: transitional states (creating, starting,
// stopping) expire in seconds while settled states (running, stopped) live
// longer, so callers poll the provider only as often as the state warrants.
//
// ScreenshotCache holds screenshot payloads with a very short TTL and
// re-encodes large images to a bounded JPEG before caching. Compression never
// fails a write: when re-encoding errors out or produces a larger payload the
// original bytes are cached instead.
//
// Both caches run the underlying store's background sweeper and must be
// closed during shutdown:
//
//	statuses := vmcache.NewStatusCache(ctx)
//	defer statuses.Close()
//
//	statuses.SetStatus(vmcache.VMStatus{VMID: "vm-1", Status: "running"})
//	if st, ok := statuses.GetStatus("vm-1"); ok {
//		fmt.Println(st.Status)
//	}
package vmcache
