package command

import "net/http"

const sessionPath = "/session/{sessionId}"

var legacy = newRegistry(DialectLegacy, map[string]Info{
	NewSession:      {http.MethodPost, "/session"},
	GetSessions:     {http.MethodGet, "/sessions"},
	GetCapabilities: {http.MethodGet, sessionPath},
	Quit:            {http.MethodDelete, sessionPath},
	GetStatus:       {http.MethodGet, "/status"},

	Navigate:      {http.MethodPost, sessionPath + "/url"},
	GetCurrentURL: {http.MethodGet, sessionPath + "/url"},
	GoBack:        {http.MethodPost, sessionPath + "/back"},
	GoForward:     {http.MethodPost, sessionPath + "/forward"},
	Refresh:       {http.MethodPost, sessionPath + "/refresh"},
	GetTitle:      {http.MethodGet, sessionPath + "/title"},
	GetPageSource: {http.MethodGet, sessionPath + "/source"},

	Screenshot:        {http.MethodGet, sessionPath + "/screenshot"},
	ElementScreenshot: {http.MethodGet, sessionPath + "/element/{id}/screenshot"},

	FindElement:       {http.MethodPost, sessionPath + "/element"},
	FindElements:      {http.MethodPost, sessionPath + "/elements"},
	FindChildElement:  {http.MethodPost, sessionPath + "/element/{id}/element"},
	FindChildElements: {http.MethodPost, sessionPath + "/element/{id}/elements"},
	GetActiveElement:  {http.MethodPost, sessionPath + "/element/active"},

	ClickElement:        {http.MethodPost, sessionPath + "/element/{id}/click"},
	ClearElement:        {http.MethodPost, sessionPath + "/element/{id}/clear"},
	SubmitElement:       {http.MethodPost, sessionPath + "/element/{id}/submit"},
	SendKeysToElement:   {http.MethodPost, sessionPath + "/element/{id}/value"},
	GetElementText:      {http.MethodGet, sessionPath + "/element/{id}/text"},
	GetElementTagName:   {http.MethodGet, sessionPath + "/element/{id}/name"},
	IsElementSelected:   {http.MethodGet, sessionPath + "/element/{id}/selected"},
	IsElementEnabled:    {http.MethodGet, sessionPath + "/element/{id}/enabled"},
	IsElementDisplayed:  {http.MethodGet, sessionPath + "/element/{id}/displayed"},
	GetElementLocation:  {http.MethodGet, sessionPath + "/element/{id}/location"},
	GetElementSize:      {http.MethodGet, sessionPath + "/element/{id}/size"},
	GetElementAttribute: {http.MethodGet, sessionPath + "/element/{id}/attribute/{name}"},
	GetElementCSSValue:  {http.MethodGet, sessionPath + "/element/{id}/css/{propertyName}"},
	ElementEquals:       {http.MethodGet, sessionPath + "/element/{id}/equals/{other}"},

	ExecuteScript:      {http.MethodPost, sessionPath + "/execute"},
	ExecuteAsyncScript: {http.MethodPost, sessionPath + "/execute_async"},
	SetTimeouts:        {http.MethodPost, sessionPath + "/timeouts"},

	GetWindowHandle:     {http.MethodGet, sessionPath + "/window_handle"},
	GetWindowHandles:    {http.MethodGet, sessionPath + "/window_handles"},
	SwitchToWindow:      {http.MethodPost, sessionPath + "/window"},
	CloseWindow:         {http.MethodDelete, sessionPath + "/window"},
	SwitchToFrame:       {http.MethodPost, sessionPath + "/frame"},
	SwitchToParentFrame: {http.MethodPost, sessionPath + "/frame/parent"},
	GetWindowSize:       {http.MethodGet, sessionPath + "/window/{windowHandle}/size"},
	SetWindowSize:       {http.MethodPost, sessionPath + "/window/{windowHandle}/size"},
	GetWindowPosition:   {http.MethodGet, sessionPath + "/window/{windowHandle}/position"},
	SetWindowPosition:   {http.MethodPost, sessionPath + "/window/{windowHandle}/position"},
	MaximizeWindow:      {http.MethodPost, sessionPath + "/window/{windowHandle}/maximize"},

	GetAllCookies:    {http.MethodGet, sessionPath + "/cookie"},
	AddCookie:        {http.MethodPost, sessionPath + "/cookie"},
	DeleteCookie:     {http.MethodDelete, sessionPath + "/cookie/{name}"},
	DeleteAllCookies: {http.MethodDelete, sessionPath + "/cookie"},

	AcceptAlert:   {http.MethodPost, sessionPath + "/accept_alert"},
	DismissAlert:  {http.MethodPost, sessionPath + "/dismiss_alert"},
	GetAlertText:  {http.MethodGet, sessionPath + "/alert_text"},
	SetAlertValue: {http.MethodPost, sessionPath + "/alert_text"},
})

// LegacyRegistry returns the JSON wire protocol registry.
func LegacyRegistry() *Registry {
	return legacy
}
