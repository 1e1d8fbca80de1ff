/*
Package cipher resolves playable stream URLs from platform format descriptors.

Formats served with a direct url are passed through. Formats carrying a
signatureCipher (or the older cipher field) need the player script: the
encrypted signature is transformed and appended to the stream url under the
parameter named by sp. The throttling parameter n is transformed as well
when the script exposes its n-function.

# Signature transform

The transform is derived from the player script in order:

 1. Regex op parser. Recognizes the helper-object form
    (XY.ab(a,3) calls on an object of reverse, splice and swap methods)
    and the inline form (a.reverse(); a.splice(0,3) on the split array).
 2. otto. Runs the script and calls its global decipher function.

The n transform extracts the n-function and evaluates it with goja,
falling back to a global ncode function under otto. When both fail the
original n is kept.

# Caching

Player scripts are cached by URL for DefaultScriptTTL (10 minutes).
Concurrent loads of the same script share one download.

# Errors

Failures are *Error values with a code (PLAYER_JS_DOWNLOAD_FAILED,
SIGNATURE_DECIPHER_FAILED, ...). Every *Error matches errs.ErrCipherFailed
with errors.Is, and IsTimeout, IsNotFound, IsJSError and friends inspect
the code.

# Usage

	engine := cipher.New(&http.Client{Timeout: 30 * time.Second})
	resolved, err := engine.DecipherFormats(ctx, formats, scriptURL, cipher.Options{})
	if err != nil {
		if cipher.IsTimeout(err) {
			// retry later
		}
		return err
	}
*/
package cipher
