package command

// Command names shared by both dialects. A name missing from a registry is
// not available in that dialect.
const (
	NewSession      = "newSession"
	Quit            = "quit"
	GetSessions     = "getSessions"
	GetCapabilities = "getCapabilities"
	GetStatus       = "status"

	Navigate      = "navigate"
	GetCurrentURL = "getCurrentUrl"
	GoBack        = "goBack"
	GoForward     = "goForward"
	Refresh       = "refresh"
	GetTitle      = "getTitle"
	GetPageSource = "getPageSource"

	Screenshot        = "screenshot"
	ElementScreenshot = "elementScreenshot"

	FindElement       = "findElement"
	FindElements      = "findElements"
	FindChildElement  = "findChildElement"
	FindChildElements = "findChildElements"
	GetActiveElement  = "getActiveElement"

	ClickElement        = "clickElement"
	ClearElement        = "clearElement"
	SubmitElement       = "submitElement"
	SendKeysToElement   = "sendKeysToElement"
	GetElementText      = "getElementText"
	GetElementTagName   = "getElementTagName"
	IsElementSelected   = "isElementSelected"
	IsElementEnabled    = "isElementEnabled"
	IsElementDisplayed  = "isElementDisplayed"
	GetElementLocation  = "getElementLocation"
	GetElementSize      = "getElementSize"
	GetElementRect      = "getElementRect"
	GetElementAttribute = "getElementAttribute"
	GetElementProperty  = "getElementProperty"
	GetElementCSSValue  = "getElementCssValue"
	ElementEquals       = "elementEquals"

	ExecuteScript      = "executeScript"
	ExecuteAsyncScript = "executeAsyncScript"
	SetTimeouts        = "setTimeouts"

	GetWindowHandle     = "getWindowHandle"
	GetWindowHandles    = "getWindowHandles"
	SwitchToWindow      = "switchToWindow"
	CloseWindow         = "closeWindow"
	SwitchToFrame       = "switchToFrame"
	SwitchToParentFrame = "switchToParentFrame"
	GetWindowSize       = "getWindowSize"
	SetWindowSize       = "setWindowSize"
	GetWindowPosition   = "getWindowPosition"
	SetWindowPosition   = "setWindowPosition"
	GetWindowRect       = "getWindowRect"
	SetWindowRect       = "setWindowRect"
	MaximizeWindow      = "maximizeWindow"
	MinimizeWindow      = "minimizeWindow"
	FullscreenWindow    = "fullscreenWindow"

	GetAllCookies    = "getAllCookies"
	GetCookie        = "getCookie"
	AddCookie        = "addCookie"
	DeleteCookie     = "deleteCookie"
	DeleteAllCookies = "deleteAllCookies"

	AcceptAlert   = "acceptAlert"
	DismissAlert  = "dismissAlert"
	GetAlertText  = "getAlertText"
	SetAlertValue = "setAlertValue"

	Actions        = "actions"
	ReleaseActions = "releaseActions"
)
