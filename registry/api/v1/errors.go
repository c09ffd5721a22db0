package v1

import (
	"net/http"

	"github.com/zpkg/registry/registry/api/errcode"
)

const errGroup = "registry.api.v1"

var (
	// ErrorCodeNameInvalid is returned when an owner or repository name does
	// not satisfy the identifier charset or length rules.
	ErrorCodeNameInvalid = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "NAME_INVALID",
		Message: "invalid owner or repository name",
		Description: `Owner and repository names are restricted to ASCII
		letters, digits, '-' and '_', at most 64 characters. This error is
		returned for any identifier outside that set.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeTagInvalid is returned when a tag fails semantic version
	// parsing during publish.
	ErrorCodeTagInvalid = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "TAG_INVALID",
		Message: "tag must be a semantic version",
		Description: `Published tags must parse as MAJOR.MINOR.PATCH with an
		optional leading 'v' and optional pre-release suffix.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodePackageUnknown is returned when the package is not known to
	// the registry.
	ErrorCodePackageUnknown = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "PACKAGE_UNKNOWN",
		Message: "package not known to registry",
		Description: `This is returned if the owner/repo pair used during an
		operation is unknown to the registry.`,
		HTTPStatusCode: http.StatusNotFound,
	})

	// ErrorCodeReleaseUnknown is returned when the tag does not name a
	// release of the package.
	ErrorCodeReleaseUnknown = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "RELEASE_UNKNOWN",
		Message: "release not known to registry",
		Description: `This error is returned when the release, identified by
		owner, repository and tag, is unknown to the registry. Draft releases
		also return this error on download.`,
		HTTPStatusCode: http.StatusNotFound,
	})

	// ErrorCodeReleaseExists is returned on publish of a duplicate
	// (owner, repo, tag).
	ErrorCodeReleaseExists = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "RELEASE_EXISTS",
		Message: "Release already exists",
		Description: `Releases are immutable. Publishing a tag that already
		exists for the package fails; delete the release first if it must be
		replaced.`,
		HTTPStatusCode: http.StatusConflict,
	})

	// ErrorCodeAliasUnknown is returned when a short name does not resolve.
	ErrorCodeAliasUnknown = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "ALIAS_UNKNOWN",
		Message: "alias not known to registry",
		Description: `The short name is not registered, or points at a
		package that no longer exists.`,
		HTTPStatusCode: http.StatusNotFound,
	})

	// ErrorCodeBodyInvalid covers malformed JSON or multipart request
	// bodies and missing required fields.
	ErrorCodeBodyInvalid = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "BODY_INVALID",
		Message: "malformed request body",
		Description: `The request body could not be parsed as the expected
		JSON or multipart document, or a required field was missing.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeMediaTypeInvalid is returned for publish requests that are
	// not multipart/form-data.
	ErrorCodeMediaTypeInvalid = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "MEDIATYPE_INVALID",
		Message: "unsupported media type",
		Description: `Publish requests must be encoded as multipart/form-data
		with the archive in a part named "file".`,
		HTTPStatusCode: http.StatusUnsupportedMediaType,
	})

	// ErrorCodePayloadTooLarge is returned when an upload exceeds the
	// configured maximum package size.
	ErrorCodePayloadTooLarge = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "PAYLOAD_TOO_LARGE",
		Message: "uploaded archive exceeds the maximum package size",
		Description: `The archive part of a publish request was larger than
		the registry's configured maximum package size.`,
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
	})

	// ErrorCodeUsernameTaken is returned by registration when the username
	// is already in use.
	ErrorCodeUsernameTaken = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:          "USERNAME_TAKEN",
		Message:        "username already taken",
		Description:    `Another account already uses the requested username.`,
		HTTPStatusCode: http.StatusConflict,
	})

	// ErrorCodeEmailTaken is returned by registration when the email is
	// already in use.
	ErrorCodeEmailTaken = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:          "EMAIL_TAKEN",
		Message:        "email already registered",
		Description:    `Another account already uses the requested email.`,
		HTTPStatusCode: http.StatusConflict,
	})

	// ErrorCodeCredentialsInvalid is returned by login when the username or
	// password does not match.
	ErrorCodeCredentialsInvalid = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:          "CREDENTIALS_INVALID",
		Message:        "invalid username or password",
		Description:    `The presented credentials failed verification.`,
		HTTPStatusCode: http.StatusUnauthorized,
	})

	// ErrorCodeStateInvalid is returned by delegated-identity callbacks when
	// the state parameter does not match the issued nonce.
	ErrorCodeStateInvalid = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "STATE_INVALID",
		Message: "invalid authorization state",
		Description: `The state returned by the identity provider did not
		match the nonce issued at login.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeIdentityProofInvalid is returned when an ID token or user
	// info document fails verification.
	ErrorCodeIdentityProofInvalid = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "IDENTITY_PROOF_INVALID",
		Message: "identity token failed verification",
		Description: `The identity provider's token failed signature,
		issuer, audience, nonce or expiry validation.`,
		HTTPStatusCode: http.StatusUnauthorized,
	})

	// ErrorCodeAuthCodeExpired is returned when the provider rejects the
	// authorization code exchange.
	ErrorCodeAuthCodeExpired = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "AUTH_CODE_EXPIRED",
		Message: "authorization code expired",
		Description: `The authorization code could not be exchanged at the
		provider's token endpoint.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeEmailInUse is returned when a federated sign-in matches a
	// local account email that cannot be linked automatically.
	ErrorCodeEmailInUse = errcode.Register(errGroup, errcode.ErrorDescriptor{
		Value:   "EMAIL_IN_USE",
		Message: "email already linked to another account",
		Description: `The identity provider vouched for an email that belongs
		to an existing account; sign in locally and link the provider from
		the account settings.`,
		HTTPStatusCode: http.StatusConflict,
	})
)
