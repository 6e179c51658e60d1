// Package browser implements the automation agent with a single Playwright
// driven Chromium page. Page structure is described by configurable CSS
// selectors so markup changes on the platform are a config change.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

type Selectors struct {
	LoginUsername string `mapstructure:"login_username"`
	LoginPassword string `mapstructure:"login_password"`
	LoginSubmit   string `mapstructure:"login_submit"`
	LoggedIn      string `mapstructure:"logged_in"`

	BirthdayCard    string `mapstructure:"birthday_card"`
	BirthdayName    string `mapstructure:"birthday_name"`
	BirthdayProfile string `mapstructure:"birthday_profile"`
	BirthdayMessage string `mapstructure:"birthday_message"`

	UnreadThread      string `mapstructure:"unread_thread"`
	ThreadName        string `mapstructure:"thread_name"`
	ThreadSnippet     string `mapstructure:"thread_snippet"`
	ThreadLink        string `mapstructure:"thread_link"`
	ThreadLastMessage string `mapstructure:"thread_last_message"`

	MessageInput string `mapstructure:"message_input"`
	MessageSend  string `mapstructure:"message_send"`

	FollowerCount string `mapstructure:"follower_count"`
}

type Options struct {
	BaseURL         string        `mapstructure:"base_url"`
	LoginPath       string        `mapstructure:"login_path"`
	BirthdaysPath   string        `mapstructure:"birthdays_path"`
	MessagingPath   string        `mapstructure:"messaging_path"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Headless        bool          `mapstructure:"headless"`
	InstallBrowsers bool          `mapstructure:"install_browsers"`
	Timeout         time.Duration `mapstructure:"timeout"`
	WishTemplate    string        `mapstructure:"wish_template"`
	Selectors       Selectors     `mapstructure:"selectors"`
}

// Driver is safe for concurrent use, but serialises every call onto one page.
type Driver struct {
	opts Options

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
}

func New(opts Options) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.WishTemplate == "" {
		opts.WishTemplate = "Happy Birthday, {name}! 🎂 Wishing you a wonderful year ahead."
	}
	return &Driver{opts: opts}
}

func (d *Driver) pageLocked() (playwright.Page, error) {
	if d.page != nil {
		return d.page, nil
	}
	if d.opts.InstallBrowsers {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}, Verbose: false}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(d.opts.Headless)})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	bctx, err := browser.NewContext()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(d.opts.Timeout.Milliseconds()))

	d.pw, d.browser, d.bctx, d.page = pw, browser, bctx, page
	log.Info().Bool("headless", d.opts.Headless).Msg("browser started")
	return page, nil
}

// do runs fn against the single page after checking ctx.
func (d *Driver) do(ctx context.Context, fn func(p playwright.Page) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.pageLocked()
	if err != nil {
		return err
	}
	return fn(p)
}

func (d *Driver) goTo(p playwright.Page, path string) error {
	target, err := resolve(d.opts.BaseURL, path)
	if err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState("domcontentloaded")
	if _, err := p.Goto(target, playwright.PageGotoOptions{WaitUntil: &waitUntil}); err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}
	return nil
}

func (d *Driver) Login(ctx context.Context) error {
	s := d.opts.Selectors
	return d.do(ctx, func(p playwright.Page) error {
		if err := d.goTo(p, d.opts.LoginPath); err != nil {
			return err
		}
		if err := p.Fill(s.LoginUsername, d.opts.Username); err != nil {
			return fmt.Errorf("fill username: %w", err)
		}
		if err := p.Fill(s.LoginPassword, d.opts.Password); err != nil {
			return fmt.Errorf("fill password: %w", err)
		}
		if err := p.Click(s.LoginSubmit); err != nil {
			return fmt.Errorf("submit login: %w", err)
		}
		if _, err := p.WaitForSelector(s.LoggedIn); err != nil {
			return fmt.Errorf("wait for login: %w", err)
		}
		return nil
	})
}

func (d *Driver) FetchBirthdayContacts(ctx context.Context) ([]domain.Contact, error) {
	s := d.opts.Selectors
	var contacts []domain.Contact
	err := d.do(ctx, func(p playwright.Page) error {
		if err := d.goTo(p, d.opts.BirthdaysPath); err != nil {
			return err
		}
		cards, err := p.QuerySelectorAll(s.BirthdayCard)
		if err != nil {
			return fmt.Errorf("query birthday cards: %w", err)
		}
		for _, card := range cards {
			name := childText(card, s.BirthdayName)
			if name == "" {
				continue
			}
			profile := d.absolute(childAttr(card, s.BirthdayProfile, "href"))
			contacts = append(contacts, domain.Contact{
				ID:            contactID(name, profile),
				Name:          name,
				ProfileURL:    profile,
				BirthdayToday: true,
			})
		}
		return nil
	})
	return contacts, err
}

func (d *Driver) FetchUnreadMessages(ctx context.Context) ([]domain.Message, error) {
	s := d.opts.Selectors
	var msgs []domain.Message
	err := d.do(ctx, func(p playwright.Page) error {
		if err := d.goTo(p, d.opts.MessagingPath); err != nil {
			return err
		}
		threads, err := p.QuerySelectorAll(s.UnreadThread)
		if err != nil {
			return fmt.Errorf("query unread threads: %w", err)
		}
		for _, th := range threads {
			name := childText(th, s.ThreadName)
			if name == "" {
				continue
			}
			link := d.absolute(childAttr(th, s.ThreadLink, "href"))
			msgs = append(msgs, domain.Message{
				Contact:  domain.Contact{ID: name, Name: name},
				ThreadID: link,
				Text:     childText(th, s.ThreadSnippet),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The list snippet is truncated; read the full last message of each thread.
	for i := range msgs {
		if msgs[i].ThreadID == "" || s.ThreadLastMessage == "" {
			continue
		}
		err := d.do(ctx, func(p playwright.Page) error {
			if err := d.goTo(p, msgs[i].ThreadID); err != nil {
				return err
			}
			els, err := p.QuerySelectorAll(s.ThreadLastMessage)
			if err != nil || len(els) == 0 {
				return err
			}
			if txt, err := els[len(els)-1].TextContent(); err == nil && strings.TrimSpace(txt) != "" {
				msgs[i].Text = strings.TrimSpace(txt)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (d *Driver) SendWish(ctx context.Context, c domain.Contact) error {
	s := d.opts.Selectors
	text := strings.ReplaceAll(d.opts.WishTemplate, "{name}", firstName(c.Name))
	return d.do(ctx, func(p playwright.Page) error {
		if err := d.goTo(p, d.opts.BirthdaysPath); err != nil {
			return err
		}
		cards, err := p.QuerySelectorAll(s.BirthdayCard)
		if err != nil {
			return fmt.Errorf("query birthday cards: %w", err)
		}
		for _, card := range cards {
			if childText(card, s.BirthdayName) != c.Name {
				continue
			}
			btn, err := card.QuerySelector(s.BirthdayMessage)
			if err != nil || btn == nil {
				return fmt.Errorf("message button for %q not found", c.Name)
			}
			if err := btn.Click(); err != nil {
				return fmt.Errorf("open message box: %w", err)
			}
			return d.typeAndSend(p, text)
		}
		return fmt.Errorf("birthday card for %q not found", c.Name)
	})
}

func (d *Driver) SendReply(ctx context.Context, m domain.Message, text string) error {
	if m.ThreadID == "" {
		return fmt.Errorf("message from %q has no thread", m.Contact.ID)
	}
	return d.do(ctx, func(p playwright.Page) error {
		if err := d.goTo(p, m.ThreadID); err != nil {
			return err
		}
		return d.typeAndSend(p, text)
	})
}

func (d *Driver) typeAndSend(p playwright.Page, text string) error {
	s := d.opts.Selectors
	if err := p.Fill(s.MessageInput, text); err != nil {
		return fmt.Errorf("type message: %w", err)
	}
	if err := p.Click(s.MessageSend); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (d *Driver) FetchFollowerCount(ctx context.Context, profileURL string) (int, error) {
	var n int
	err := d.do(ctx, func(p playwright.Page) error {
		if err := d.goTo(p, profileURL); err != nil {
			return err
		}
		txt, err := p.TextContent(d.opts.Selectors.FollowerCount)
		if err != nil {
			return fmt.Errorf("read follower count: %w", err)
		}
		n, err = ParseCount(txt)
		return err
	})
	return n, err
}

// Close releases the page, browser and Playwright driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	_ = d.page.Close()
	_ = d.bctx.Close()
	_ = d.browser.Close()
	err := d.pw.Stop()
	d.pw, d.browser, d.bctx, d.page = nil, nil, nil, nil
	return err
}

func (d *Driver) absolute(href string) string {
	if href == "" {
		return ""
	}
	u, err := resolve(d.opts.BaseURL, href)
	if err != nil {
		return href
	}
	return u
}

func resolve(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if r.IsAbs() || base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}

func childText(el playwright.ElementHandle, selector string) string {
	if selector == "" {
		return ""
	}
	child, err := el.QuerySelector(selector)
	if err != nil || child == nil {
		return ""
	}
	txt, err := child.TextContent()
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(txt), " ")
}

func childAttr(el playwright.ElementHandle, selector, attr string) string {
	if selector == "" {
		return ""
	}
	child, err := el.QuerySelector(selector)
	if err != nil || child == nil {
		return ""
	}
	v, err := child.GetAttribute(attr)
	if err != nil {
		return ""
	}
	return v
}
