/*
Package capture collects screenshots produced by browser test sessions during a
visual regression run.

A run starts an HTTP endpoint, opens one browser session per configured client
on the test page, and stores every screenshot the page posts under

	<output>/<run id>/<session id>/<group><n>.png

until every session has reported that it is done. The run id is the short hash
of the HEAD commit of the repository under test, so images of the same revision
share a directory.

# Layout

  - pkg/ingest: the ingestion service (registry, deduplication, allocation, writes, completion).
  - pkg/runner: the run controller (bind, launch, navigate, wait, shut down).
  - pkg/adapters/http: the wire protocol (POST /screenshot, POST /done).
  - pkg/adapters/chromedp and pkg/adapters/remote: browser session drivers.
  - pkg/adapters/memory and pkg/adapters/redis: sequence counters.
  - cmd/capture: the command line.

# Page protocol

The session URL carries captureServerURL and captureClientID. The page posts

	POST /screenshot  captureClientID=<id>&module=<group>[&image=<base64 png>]
	POST /done        captureClientID=<id>

A submission identical to the previous one of the same session is answered with
409 and not written. Without an image the server captures the page itself.
*/
package capture
