package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	defaultGitHubAuthURL  = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL = "https://github.com/login/oauth/access_token"
	defaultGitHubAPIURL   = "https://api.github.com"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	APIURL   string
}

// GitHubOAuthProvider はGitHub OAuth Appによる認証を提供する。
type GitHubOAuthProvider struct {
	config     GitHubOAuthConfig
	httpClient *http.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(httpClient *http.Client, config GitHubOAuthConfig) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.APIURL == "" {
		config.APIURL = defaultGitHubAPIURL
	}
	return &GitHubOAuthProvider{config: config, httpClient: httpClient}
}

// Name はプロバイダー名を返す。
func (p *GitHubOAuthProvider) Name() string { return "github" }

// GetLoginURL はGitHubの認可URLを生成する。スコープはread:user user:email。
func (p *GitHubOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"read:user user:email"},
		"state":        {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// 公開プロフィールにメールがない場合は /user/emails から確認済みの主アドレスを使う。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	var token githubTokenResponse
	err := postTokenForm(ctx, p.httpClient, p.config.TokenURL, url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}, &token)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	// GitHubはエラー時も200でerrorフィールドを返す
	if token.Error != "" {
		return nil, fmt.Errorf("token exchange failed: %s: %s", token.Error, token.ErrorDescription)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	var user githubUser
	if err := getWithToken(ctx, p.httpClient, p.config.APIURL+"/user", token.AccessToken, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}

	email, err := p.primaryEmail(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	first, last := splitName(name)

	return &OAuthUserInfo{
		Provider:       p.Name(),
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
		FirstName:      first,
		LastName:       last,
	}, nil
}

func (p *GitHubOAuthProvider) primaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmail
	if err := getWithToken(ctx, p.httpClient, p.config.APIURL+"/user/emails", accessToken, &emails); err != nil {
		return "", fmt.Errorf("failed to fetch user emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("github account has no verified primary email")
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
