/*
Package capability caches the discovered tools, prompts and resources of every supervised
service and drives the service status state machine.

# States

	OFF -> LOADING -> ON | ERROR
	ON | ERROR -> STOPPED (explicit stop) -> OFF

A service is OFF while its process is not alive or nothing has been discovered yet.
Discovery moves it to LOADING and ends in ON (bundle cached) or ERROR. ERROR is never
retried automatically; a forced refresh is the way out.

# Discovery

Discovery of one service is deduplicated across concurrent callers, so two requests for
the same cold service issue one network round trip. Results are bound to the process
generation they were started for: a discovery that finishes after the service was
stopped or restarted is dropped.

# Reconciliation

CheckStatus is the periodic pass run by StartReconciler after every liveness refresh:

  - a dead process clears the cache and moves the service to OFF;
  - LOADING with a cached bundle moves to ON;
  - an alive service that is OFF with no bundle gets an asynchronous discovery.

It never re-queries a service that already has a cached bundle.
*/
package capability
