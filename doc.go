// Package ytstreams resolves the playable streams of a video through an
// authenticated mobile watch-page session.
//
// A session.Manager keeps the cookie jar fresh; a Service built on top of it
// fetches the watch page, extracts ytInitialPlayerResponse, collects the
// progressive and adaptive formats and hands them to a cipher.Decipherer
// together with the player script reference.
//
//	mgr := session.NewManager(&session.HTTPSource{URL: cookieURL})
//	mgr.Start(ctx)
//	svc, err := ytstreams.New(mgr, ytstreams.Config{})
//	list, err := svc.ResolveStreams(ctx, "dQw4w9WgXcQ")
package ytstreams
