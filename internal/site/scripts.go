package site

// InjectOverlayScript creates the countdown overlay once per page.
const InjectOverlayScript = `() => {
	if (!document.getElementById('countdown-overlay')) {
		const overlay = document.createElement('div');
		overlay.id = 'countdown-overlay';
		overlay.style.cssText = [
			'position: fixed',
			'top: 20px',
			'right: 20px',
			'background: rgba(0, 0, 0, 0.8)',
			'color: white',
			'padding: 15px',
			'border-radius: 10px',
			'font-size: 24px',
			'z-index: 9999',
		].join(';');
		document.body.appendChild(overlay);
	}
}`

// UpdateOverlayScript takes the overlay text as its argument.
const UpdateOverlayScript = `text => {
	const overlay = document.getElementById('countdown-overlay');
	if (overlay) {
		overlay.innerText = text;
	}
}`

// ReadStorageScript takes a local-storage key and returns its value or null.
const ReadStorageScript = `key => window.localStorage.getItem(key)`

// ClearStorageScript takes a list of local-storage keys and removes them.
const ClearStorageScript = `keys => {
	for (const key of keys) {
		window.localStorage.removeItem(key);
	}
}`
