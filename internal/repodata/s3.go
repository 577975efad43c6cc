package repodata

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// s3Credentials are resolved once per request from the environment,
// falling back to the OS credential store (spec §4.F: "using locally
// available credentials").
//
// SigV4 presigning is hand-rolled against the public AWS algorithm
// (crypto/hmac + crypto/sha256) rather than pulled from an AWS SDK: no
// AWS SDK for Go appears anywhere in the retrieval pack. See DESIGN.md.
type s3Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

const keyringService = "rattler-go-s3"

func resolveS3Credentials(bucket string) (s3Credentials, error) {
	creds := s3Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		return creds, nil
	}

	secret, err := keyring.Get(keyringService, bucket)
	if err != nil {
		return s3Credentials{}, fmt.Errorf("no S3 credentials in environment and none found in credential store for bucket %q: %w", bucket, err)
	}
	parts := strings.SplitN(secret, ":", 2)
	if len(parts) != 2 {
		return s3Credentials{}, fmt.Errorf("malformed credential store entry for bucket %q", bucket)
	}
	return s3Credentials{AccessKeyID: parts[0], SecretAccessKey: parts[1]}, nil
}

func resolveS3Region() string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return "us-east-1"
}

// s3Endpoint computes the host and URL path for bucket/key following
// the SDK's addressing rules: virtual-hosted style by default, falling
// back to path-style when the bucket name contains dots (which breaks
// TLS SNI matching for virtual-hosted requests) or when a
// S3-compatible custom endpoint is configured.
func s3Endpoint(bucket, key, region string) (host, path string, pathStyle bool) {
	if custom := os.Getenv("AWS_S3_ENDPOINT"); custom != "" {
		host = strings.TrimPrefix(strings.TrimPrefix(custom, "https://"), "http://")
		return host, "/" + bucket + "/" + key, true
	}
	if strings.Contains(bucket, ".") {
		host = fmt.Sprintf("s3.%s.amazonaws.com", region)
		return host, "/" + bucket + "/" + key, true
	}
	host = fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, region)
	return host, "/" + key, false
}

// presignGetURL builds a SigV4 presigned GET URL valid for expires,
// implementing the documented AWS algorithm directly.
func presignGetURL(bucket, key, region string, creds s3Credentials, expires time.Duration, now time.Time) string {
	host, path, _ := s3Endpoint(bucket, key, region)
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	credentialScope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, region)

	query := url.Values{}
	query.Set("X-Amz-Algorithm", "AWS4-HMAC-SHA256")
	query.Set("X-Amz-Credential", fmt.Sprintf("%s/%s", creds.AccessKeyID, credentialScope))
	query.Set("X-Amz-Date", amzDate)
	query.Set("X-Amz-Expires", fmt.Sprintf("%d", int(expires.Seconds())))
	query.Set("X-Amz-SignedHeaders", "host")
	if creds.SessionToken != "" {
		query.Set("X-Amz-Security-Token", creds.SessionToken)
	}
	canonicalQuery := query.Encode()

	canonicalHeaders := "host:" + host + "\n"
	canonicalRequest := strings.Join([]string{
		http.MethodGet,
		canonicalURI(path),
		canonicalQuery,
		canonicalHeaders,
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")

	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		hashHex(canonicalRequest),
	}, "\n")

	signingKey := deriveSigningKey(creds.SecretAccessKey, dateStamp, region, "s3")
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	return fmt.Sprintf("https://%s%s?%s&X-Amz-Signature=%s", host, path, canonicalQuery, signature)
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

// S3Transport fetches s3:// URLs by generating a short-lived presigned
// GET URL and delegating to plain HTTP.
type S3Transport struct {
	HTTPClient *http.Client
	Expires    time.Duration
}

// NewS3Transport builds an S3Transport with a 15-minute presign window.
func NewS3Transport() *S3Transport {
	return &S3Transport{HTTPClient: http.DefaultClient, Expires: 15 * time.Minute}
}

func (t *S3Transport) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	bucket, key, err := parseS3URL(req.URL)
	if err != nil {
		return nil, rerrors.New(rerrors.KindInvalidPath, "repodata.S3Transport.Fetch", err).WithURL(req.URL)
	}

	creds, err := resolveS3Credentials(bucket)
	if err != nil {
		return nil, rerrors.New(rerrors.KindFetchPermanent, "repodata.S3Transport.Fetch", err).WithURL(req.URL)
	}
	region := resolveS3Region()
	presigned := presignGetURL(bucket, key, region, creds, t.Expires, time.Now().UTC())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, presigned, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, rerrors.New(rerrors.KindFetchTransient, "repodata.S3Transport.Fetch", err).WithURL(req.URL)
	}
	return &FetchResponse{
		StatusCode:   resp.StatusCode,
		Body:         resp.Body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func parseS3URL(raw string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(raw, "s3://")
	if rest == raw {
		return "", "", fmt.Errorf("not an s3:// url: %s", raw)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 url (expected s3://bucket/key): %s", raw)
	}
	return parts[0], parts[1], nil
}
