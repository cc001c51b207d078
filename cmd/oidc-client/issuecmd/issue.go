/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eudi-wallet/oidc-client-go/pkg/client/openid4ci"
	"github.com/eudi-wallet/oidc-client-go/pkg/common/log"
	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
	httptransport "github.com/eudi-wallet/oidc-client-go/pkg/transport/http"
	"github.com/eudi-wallet/oidc-client-go/pkg/vdr/key"
)

const (
	// credential offer flag.
	offerFlagName      = "offer"
	offerEnvKey        = "OIDC_CLIENT_OFFER"
	offerFlagShorthand = "o"
	offerFlagUsage     = "Credential offer: an openid-credential-offer:// link, an offer URL or the offer JSON." +
		" Alternatively, this can be set with the following environment variable: " + offerEnvKey

	// user pin flag.
	userPINFlagName      = "user-pin"
	userPINEnvKey        = "OIDC_CLIENT_USER_PIN"
	userPINFlagShorthand = "p"
	userPINFlagUsage     = "PIN for the pre-authorized code grant, when the offer requires one." +
		" Alternatively, this can be set with the following environment variable: " + userPINEnvKey

	// key seed flag.
	seedFlagName  = "seed"
	seedEnvKey    = "OIDC_CLIENT_SEED"
	seedFlagUsage = "Seed for a deterministic P-256 wallet key. A random key is generated if not set." +
		" Alternatively, this can be set with the following environment variable: " + seedEnvKey

	// key file flag.
	keyFileFlagName      = "key-file"
	keyFileEnvKey        = "OIDC_CLIENT_KEY_FILE"
	keyFileFlagShorthand = "k"
	keyFileFlagUsage     = "Path of a JWK file holding the wallet key. It is created when it does not exist." +
		" Alternatively, this can be set with the following environment variable: " + keyFileEnvKey

	// key type flag.
	keyTypeFlagName  = "key-type"
	keyTypeEnvKey    = "OIDC_CLIENT_KEY_TYPE"
	keyTypeFlagUsage = "Type of a generated wallet key." +
		" Possible values [" + keyTypeP256 + "] [" + keyTypeEd25519 + "]. Defaults to " + keyTypeP256 + " if not set." +
		" Alternatively, this can be set with the following environment variable: " + keyTypeEnvKey

	// http timeout flag.
	timeoutFlagName  = "timeout"
	timeoutEnvKey    = "OIDC_CLIENT_TIMEOUT"
	timeoutFlagUsage = "Timeout of a single request to the issuer, e.g. 10s." +
		" Defaults to " + timeoutDefault + " if not set." +
		" Alternatively, this can be set with the following environment variable: " + timeoutEnvKey
	timeoutDefault = "30s"

	// log level.
	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "OIDC_CLIENT_LOG_LEVEL"
	logLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey

	// redirect uri flag.
	redirectURIFlagName  = "redirect-uri"
	redirectURIEnvKey    = "OIDC_CLIENT_REDIRECT_URI"
	redirectURIFlagUsage = "Redirect URI sent in the authorization request." +
		" Defaults to " + openid4ci.DefaultRedirectURI + " if not set." +
		" Alternatively, this can be set with the following environment variable: " + redirectURIEnvKey

	// deferred poll interval flag.
	pollIntervalFlagName  = "poll-interval"
	pollIntervalEnvKey    = "OIDC_CLIENT_POLL_INTERVAL"
	pollIntervalFlagUsage = "Initial wait between deferred credential polls, growing exponentially." +
		" Defaults to " + pollIntervalDefault + " if not set." +
		" Alternatively, this can be set with the following environment variable: " + pollIntervalEnvKey
	pollIntervalDefault = "5s"

	// deferred poll retries flag.
	pollMaxRetriesFlagName  = "poll-max-retries"
	pollMaxRetriesEnvKey    = "OIDC_CLIENT_POLL_MAX_RETRIES"
	pollMaxRetriesFlagUsage = "Maximum number of deferred credential polls after the first one." +
		" Defaults to " + pollMaxRetriesDefault + " if not set." +
		" Alternatively, this can be set with the following environment variable: " + pollMaxRetriesEnvKey
	pollMaxRetriesDefault = "10"

	// env file flag.
	envFileFlagName  = "env-file"
	envFileEnvKey    = "OIDC_CLIENT_ENV_FILE"
	envFileFlagUsage = "Path of a .env file to read OIDC_CLIENT_* variables from." +
		" Variables already set in the environment take precedence." +
		" Alternatively, this can be set with the following environment variable: " + envFileEnvKey

	keyTypeP256    = "P256"
	keyTypeEd25519 = "Ed25519"

	keyFileMode = 0o600
)

var (
	errMissingOffer = errors.New("credential offer not provided")
	logger          = log.New("oidc-client/cli")
)

type issueParameters struct {
	offer          string
	userPIN        string
	seed           string
	keyFile        string
	keyType        string
	redirectURI    string
	timeout        time.Duration
	pollInterval   time.Duration
	pollMaxRetries uint64
}

// Cmd returns the Cobra issue command. The issued credential is written to out.
func Cmd(out io.Writer) *cobra.Command {
	issueCmd := createIssueCmd(out)

	createFlags(issueCmd)

	return issueCmd
}

func createIssueCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "issue",
		Short: "Receive a credential",
		Long:  `Receive a verifiable credential from an OpenID4VCI issuer for the given credential offer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, err := getUserSetVar(cmd, envFileFlagName, envFileEnvKey, true)
			if err != nil {
				return err
			}

			if envFile != "" {
				if err = godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load env file %s: %w", envFile, err)
				}
			}

			logLevel, err := getUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
			if err != nil {
				return err
			}

			if err = setLogLevel(logLevel); err != nil {
				return err
			}

			parameters, err := getIssueParameters(cmd)
			if err != nil {
				return err
			}

			result, err := issue(context.Background(), parameters)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(out, result.CredentialString())

			return err
		},
	}
}

func getIssueParameters(cmd *cobra.Command) (*issueParameters, error) { //nolint:funlen
	var (
		parameters = &issueParameters{}
		err        error
	)

	parameters.offer, err = getUserSetVar(cmd, offerFlagName, offerEnvKey, false)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(parameters.offer) == "" {
		return nil, errMissingOffer
	}

	parameters.userPIN, err = getUserSetVar(cmd, userPINFlagName, userPINEnvKey, true)
	if err != nil {
		return nil, err
	}

	parameters.seed, err = getUserSetVar(cmd, seedFlagName, seedEnvKey, true)
	if err != nil {
		return nil, err
	}

	parameters.keyFile, err = getUserSetVar(cmd, keyFileFlagName, keyFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	parameters.keyType, err = getUserSetVar(cmd, keyTypeFlagName, keyTypeEnvKey, true)
	if err != nil {
		return nil, err
	}

	parameters.redirectURI, err = getUserSetVar(cmd, redirectURIFlagName, redirectURIEnvKey, true)
	if err != nil {
		return nil, err
	}

	parameters.timeout, err = getDuration(cmd, timeoutFlagName, timeoutEnvKey, timeoutDefault)
	if err != nil {
		return nil, err
	}

	parameters.pollInterval, err = getDuration(cmd, pollIntervalFlagName, pollIntervalEnvKey, pollIntervalDefault)
	if err != nil {
		return nil, err
	}

	retries, err := getUserSetVar(cmd, pollMaxRetriesFlagName, pollMaxRetriesEnvKey, true)
	if err != nil {
		return nil, err
	}

	if retries == "" {
		retries = pollMaxRetriesDefault
	}

	parameters.pollMaxRetries, err = strconv.ParseUint(retries, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s %s: %w", pollMaxRetriesFlagName, retries, err)
	}

	return parameters, nil
}

func getDuration(cmd *cobra.Command, flagName, envKey, defaultValue string) (time.Duration, error) {
	value, err := getUserSetVar(cmd, flagName, envKey, true)
	if err != nil {
		return 0, err
	}

	if value == "" {
		value = defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s %s: %w", flagName, value, err)
	}

	return d, nil
}

func createFlags(issueCmd *cobra.Command) {
	issueCmd.Flags().StringP(offerFlagName, offerFlagShorthand, "", offerFlagUsage)
	issueCmd.Flags().StringP(userPINFlagName, userPINFlagShorthand, "", userPINFlagUsage)
	issueCmd.Flags().StringP(seedFlagName, "", "", seedFlagUsage)
	issueCmd.Flags().StringP(keyFileFlagName, keyFileFlagShorthand, "", keyFileFlagUsage)
	issueCmd.Flags().StringP(keyTypeFlagName, "", "", keyTypeFlagUsage)
	issueCmd.Flags().StringP(timeoutFlagName, "", "", timeoutFlagUsage)
	issueCmd.Flags().StringP(logLevelFlagName, "", "", logLevelFlagUsage)
	issueCmd.Flags().StringP(redirectURIFlagName, "", "", redirectURIFlagUsage)
	issueCmd.Flags().StringP(pollIntervalFlagName, "", "", pollIntervalFlagUsage)
	issueCmd.Flags().StringP(pollMaxRetriesFlagName, "", "", pollMaxRetriesFlagUsage)
	issueCmd.Flags().StringP(envFileFlagName, "", "", envFileFlagUsage)
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func setLogLevel(logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func issue(ctx context.Context, parameters *issueParameters) (*openid4ci.CredentialResult, error) { //nolint:gocyclo
	kp, err := loadKeyPair(parameters)
	if err != nil {
		return nil, err
	}

	did, err := key.CreateDID(kp)
	if err != nil {
		return nil, fmt.Errorf("failed to create did:key: %w", err)
	}

	logger.Infof("wallet DID %s", did)

	var opts []openid4ci.Opt
	if parameters.redirectURI != "" {
		opts = append(opts, openid4ci.WithRedirectURI(parameters.redirectURI))
	}

	client, err := openid4ci.New(httptransport.New(httptransport.WithTimeout(parameters.timeout)), opts...)
	if err != nil {
		return nil, err
	}

	flow := client.NewFlow(did, kp)

	if err = flow.ResolveOffer(ctx, parameters.offer); err != nil {
		return nil, err
	}

	issuerMetadata, err := client.ResolveIssuerMetadata(ctx, flow.Offer().CredentialIssuer)
	if err != nil {
		return nil, err
	}

	serverMetadata, err := client.ResolveAuthorizationServerMetadata(ctx, issuerMetadata.AuthorizationServerURL())
	if err != nil {
		return nil, err
	}

	if flow.Offer().PreAuthorizedGrant() == nil {
		logger.Infof("authorizing at %s", serverMetadata.AuthorizationEndpoint)

		if err = flow.Authorize(ctx, serverMetadata.AuthorizationEndpoint); err != nil {
			return nil, err
		}
	}

	if err = flow.ExchangeToken(ctx, serverMetadata.TokenEndpoint, parameters.userPIN); err != nil {
		return nil, err
	}

	result, err := flow.RequestCredential(ctx, issuerMetadata.CredentialEndpoint)
	if errors.Is(err, openid4ci.ErrProofClientIDMismatch) {
		logger.Infof("issuer rejected the proof client_id, retrying with the fresh c_nonce")

		result, err = flow.RequestCredential(ctx, issuerMetadata.CredentialEndpoint)
	}

	if err != nil {
		return nil, err
	}

	if !result.Deferred() {
		return result, nil
	}

	if issuerMetadata.DeferredCredentialEndpoint == "" {
		return nil, errors.New("credential is deferred but the issuer has no deferred credential endpoint")
	}

	return pollDeferred(ctx, flow, issuerMetadata.DeferredCredentialEndpoint, parameters)
}

func pollDeferred(ctx context.Context, flow *openid4ci.Flow, endpoint string,
	parameters *issueParameters) (*openid4ci.CredentialResult, error) {
	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = parameters.pollInterval
	expBackOff.MaxElapsedTime = 0

	var result *openid4ci.CredentialResult

	err := backoff.RetryNotify(
		func() error {
			var pollErr error

			result, pollErr = flow.PollDeferredCredential(ctx, endpoint)
			if pollErr != nil && !errors.Is(pollErr, openid4ci.ErrUnexpectedResponse) {
				return backoff.Permanent(pollErr)
			}

			return pollErr
		},
		backoff.WithContext(backoff.WithMaxRetries(expBackOff, parameters.pollMaxRetries), ctx),
		func(retryErr error, t time.Duration) {
			logger.Infof("deferred credential not ready, polling again in %s : %s", t, retryErr)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to receive deferred credential: %w", err)
	}

	return result, nil
}

func loadKeyPair(parameters *issueParameters) (keypair.KeyPair, error) {
	if parameters.keyFile != "" {
		data, err := os.ReadFile(parameters.keyFile)

		switch {
		case err == nil:
			logger.Debugf("wallet key read from %s", parameters.keyFile)

			kp, parseErr := keypair.ParseJWK(data)
			if parseErr != nil {
				return nil, parseErr
			}

			if err = checkStoredKeyPair(kp, parameters); err != nil {
				return nil, err
			}

			return kp, nil
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
	}

	kp, err := generateKeyPair(parameters.keyType, parameters.seed)
	if err != nil {
		return nil, err
	}

	if parameters.keyFile == "" {
		return kp, nil
	}

	data, err := keypair.MarshalJWK(kp)
	if err != nil {
		return nil, err
	}

	if err = os.WriteFile(parameters.keyFile, data, keyFileMode); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	logger.Infof("wallet key written to %s", parameters.keyFile)

	return kp, nil
}

// checkStoredKeyPair rejects key-type and seed flags that do not describe the key already stored in the key file.
func checkStoredKeyPair(kp keypair.KeyPair, parameters *issueParameters) error {
	switch {
	case parameters.keyType == "":
	case strings.EqualFold(parameters.keyType, keyTypeP256) && kp.KeyType() == keypair.KeyTypeEC,
		strings.EqualFold(parameters.keyType, keyTypeEd25519) && kp.KeyType() == keypair.KeyTypeOKP:
	default:
		return fmt.Errorf("%s %s conflicts with the %s key in %s",
			keyTypeFlagName, parameters.keyType, kp.KeyType(), parameters.keyFile)
	}

	if parameters.seed == "" {
		return nil
	}

	seeded, err := keypair.GenerateECKeyPair([]byte(parameters.seed))
	if err != nil {
		return err
	}

	seededDID, err := key.CreateDID(seeded)
	if err != nil {
		return err
	}

	storedDID, err := key.CreateDID(kp)
	if err != nil {
		return err
	}

	if seededDID != storedDID {
		return fmt.Errorf("%s does not match the key in %s", seedFlagName, parameters.keyFile)
	}

	return nil
}

func generateKeyPair(keyType, seed string) (keypair.KeyPair, error) {
	switch {
	case keyType == "" || strings.EqualFold(keyType, keyTypeP256):
		kp, err := keypair.GenerateECKeyPair([]byte(seed))
		if err != nil {
			return nil, err
		}

		return kp, nil
	case strings.EqualFold(keyType, keyTypeEd25519):
		if seed != "" {
			return nil, fmt.Errorf("%s is only supported for %s keys", seedFlagName, keyTypeP256)
		}

		kp, err := keypair.GenerateEd25519KeyPair()
		if err != nil {
			return nil, err
		}

		return kp, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", keyType)
	}
}
