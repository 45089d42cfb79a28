package platform

// DefaultDownloadURL is served when no channel- or platform-specific URL applies.
const DefaultDownloadURL = "http://a.app.qq.com/o/simple.jsp?pkgname=com.wanmeizhensuo.zhensuo"

// ChannelURLs holds the per-platform download links for one acquisition channel.
type ChannelURLs struct {
	Android string
	IOS     string
	Name    string
}

// downloadURLs maps acquisition channel identifiers (carried in a cookie) to
// their download links.
var downloadURLs = map[string]ChannelURLs{
	"default": {
		Android: "http://dl.gmei.com/current/perfect/gengmei_perfect.apk",
		IOS:     "https://itunes.apple.com/cn/app/id639234809",
		Name:    "默认",
	},
	"fst": {
		Android: "http://dl.gmei.com/current/fst/gengmei_fst.apk",
		IOS:     "http://um0.cn/2eeP93",
		Name:    "粉丝通1",
	},
	"fensitong": {
		Android: "http://dl.gmei.com/current/fensitong/gengmei_fensitong.apk",
		IOS:     "http://um0.cn/5EpTI",
		Name:    "粉丝通2",
	},
	"weibosixin": {
		Android: "http://dl.gmei.com/current/weibosixin/gengmei_weibosixin.apk",
		IOS:     "http://um0.cn/2eGf5R",
		Name:    "微博私信",
	},
	"youkuqiantiepian": {
		Android: "http://dl.gmei.com/current/youku/gengmei_youku.apk",
		IOS:     "http://um0.cn/tjezx",
		Name:    "优酷前贴片",
	},
	"youkuzanting": {
		Android: "http://dl.gmei.com/current/ykzt/gengmei_ykzt.apk",
		IOS:     "http://um0.cn/Lbmfy",
		Name:    "优酷暂停",
	},
	"baiduvip": {
		Android: "http://dl.gmei.com/current/bdvip/gengmei_bdvip.apk",
		IOS:     "http://um0.cn/3ufMNc",
		Name:    "百度VIP",
	},
	"iqiyiqiantiepian": {
		Android: "http://dl.gmei.com/current/iqiyi/gengmei_iqiyi.apk",
		IOS:     "http://um0.cn/VwWWC",
		Name:    "爱奇艺",
	},
	"weixin": {
		Android: "http://dl.gmei.com/current/weixingg/gengmei_weixingg.apk",
		IOS:     "http://um0.cn/3QGIkL",
		Name:    "微信公众号",
	},
	"momo": {
		Android: "http://dl.gmei.com/current/momo/gengmei_momo.apk",
		IOS:     "http://um0.cn/uTmWM",
		Name:    "陌陌",
	},
}

// DownloadURL resolves the app download link for a channel and platform.
// Unknown channels fall back to the default channel; platforms without a
// dedicated package get the generic store link.
func DownloadURL(channel string, p Platform) string {
	urls, ok := downloadURLs[channel]
	if !ok {
		urls = downloadURLs["default"]
	}

	switch p {
	case IOS:
		return urls.IOS
	case Android:
		return urls.Android
	default:
		return DefaultDownloadURL
	}
}
